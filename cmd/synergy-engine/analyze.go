package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-synergy/internal/api"
	"github.com/miradorstack/mirador-synergy/internal/config"
	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

type analyzeFlags struct {
	start         string
	end           string
	areas         []string
	minSupport    int
	minRatio      float64
	minConfidence float64
	uncertainty   bool
	publish       bool
	suggestions   bool
}

func analyzeCommand(configPath *string) *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return analyze(cmd, *configPath, f)
		},
	}
	cmd.Flags().StringVar(&f.start, "start", "", "Window start (RFC3339); defaults to now minus the configured lookback")
	cmd.Flags().StringVar(&f.end, "end", "", "Window end (RFC3339); defaults to now")
	cmd.Flags().StringSliceVar(&f.areas, "area", nil, "Restrict the analysis to these areas")
	cmd.Flags().IntVar(&f.minSupport, "min-support", 0, "Minimum joint occurrences for a co-occurrence")
	cmd.Flags().Float64Var(&f.minRatio, "min-support-ratio", 0, "Minimum joint/total event ratio for a co-occurrence")
	cmd.Flags().Float64Var(&f.minConfidence, "min-confidence", 0, "Minimum co-occurrence confidence")
	cmd.Flags().BoolVar(&f.uncertainty, "uncertainty", false, "Attach confidence intervals to suggestions")
	cmd.Flags().BoolVar(&f.publish, "publish", false, "Publish the suggestions over MQTT when configured")
	cmd.Flags().BoolVar(&f.suggestions, "suggestions-only", false, "Print only the ranked suggestions")
	return cmd
}

func analyze(cmd *cobra.Command, configPath string, f analyzeFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := utils.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON)

	req, err := f.request()
	if err != nil {
		return err
	}
	if err := api.ValidateAnalysisRequest(req); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, logger, f.publish)
	if err != nil {
		return err
	}
	defer a.Close(logger)

	result, err := a.service.Analyze(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if f.suggestions {
		return enc.Encode(result.Suggestions)
	}
	return enc.Encode(result)
}

func (f analyzeFlags) request() (models.AnalysisRequest, error) {
	req := models.AnalysisRequest{
		MinSupport:         f.minSupport,
		MinSupportRatio:    f.minRatio,
		MinConfidence:      f.minConfidence,
		IncludeUncertainty: f.uncertainty,
		Areas:              f.areas,
	}
	if f.start == "" && f.end == "" {
		return req, nil
	}
	end := time.Now().UTC()
	if f.end != "" {
		t, err := utils.ParseRFC3339(f.end)
		if err != nil {
			return req, fmt.Errorf("invalid --end: %w", err)
		}
		end = t
	}
	if f.start == "" {
		return req, fmt.Errorf("--start is required when --end is set")
	}
	start, err := utils.ParseRFC3339(f.start)
	if err != nil {
		return req, fmt.Errorf("invalid --start: %w", err)
	}
	req.TimeRange = models.TimeRange{Start: start, End: end}
	return req, nil
}
