package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/miradorstack/mirador-synergy/internal/blueprints"
	"github.com/miradorstack/mirador-synergy/internal/cache"
	"github.com/miradorstack/mirador-synergy/internal/calibration"
	"github.com/miradorstack/mirador-synergy/internal/config"
	"github.com/miradorstack/mirador-synergy/internal/engine"
	"github.com/miradorstack/mirador-synergy/internal/homecontext"
	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/noise"
	"github.com/miradorstack/mirador-synergy/internal/patterns"
	"github.com/miradorstack/mirador-synergy/internal/publish"
	"github.com/miradorstack/mirador-synergy/internal/repo"
	"github.com/miradorstack/mirador-synergy/internal/services"
	"github.com/miradorstack/mirador-synergy/internal/synergy"
)

// app holds everything built from configuration.
type app struct {
	pipeline *engine.Pipeline
	service  *services.SynergyService
	closers  []func() error
}

func (a *app) Close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", slog.Any("error", err))
		}
	}
}

// build wires the pipeline and service. Optional stores that cannot be opened are
// logged and skipped; unreadable lore files are fatal.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, withPublisher bool) (*app, error) {
	a := &app{}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		mem := cache.NewMemoryProvider(cfg.Cache.EntitiesTTL, cfg.Cache.CleanupEvery)
		cacheProvider = mem
		a.closers = append(a.closers, mem.Close)
	}

	core := repo.NewHomeCoreClient(cfg.Clients.Core, cacheProvider, cfg.Cache.EntitiesTTL)
	var events engine.EventSource = core
	if cfg.Clients.Kafka.Enabled {
		events = repo.NewKafkaEventSource(cfg.Clients.Kafka, logger)
		logger.Info("reading state changes from kafka", slog.String("topic", cfg.Clients.Kafka.Topic))
	}

	filter := noise.NewFilter(noise.Options{
		ExcludedDomains:    cfg.Noise.ExcludedDomains,
		PassiveDomains:     cfg.Noise.PassiveDomains,
		DiagnosticPatterns: cfg.Noise.DiagnosticPatterns,
	})

	var patternStore patterns.Store
	var patternReader services.PatternReader
	if snapshots, err := repo.NewPatternSnapshotStore(cfg.Storage.PatternsDir); err != nil {
		logger.Warn("pattern snapshots disabled", slog.String("dir", cfg.Storage.PatternsDir), slog.Any("error", err))
	} else {
		patternStore = snapshots
		patternReader = snapshots
		a.closers = append(a.closers, snapshots.Close)
	}

	templates := synergy.DefaultTemplates()
	if cfg.Synergy.TemplatesPath != "" {
		loaded, err := synergy.LoadTemplates(cfg.Synergy.TemplatesPath)
		if err != nil {
			return nil, fmt.Errorf("load context templates: %w", err)
		}
		templates = loaded
	}

	rules, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("load rule pack: %w", err)
	}

	var matcher *blueprints.Matcher
	if cfg.Blueprints.Enabled {
		matcher = blueprints.NewMatcher(logger, blueprintCorpus(cfg, cacheProvider, logger), blueprints.Options{
			MinScore:   cfg.Blueprints.MinScore,
			MinQuality: cfg.Blueprints.MinQuality,
			Timeout:    cfg.Blueprints.Timeout,
		})
	}

	var persister calibration.Persister
	var feedbackStore services.FeedbackStore
	if cfg.Storage.CalibrationDSN != "" {
		if dir := filepath.Dir(cfg.Storage.CalibrationDSN); dir != "." && cfg.Storage.CalibrationDSN != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logger.Warn("create calibration directory failed", slog.Any("error", err))
			}
		}
		calRepo, err := repo.NewCalibrationRepo(cfg.Storage.CalibrationDSN)
		if err != nil {
			logger.Warn("calibration persistence disabled", slog.Any("error", err))
		} else {
			persister = calRepo
			feedbackStore = calRepo
			a.closers = append(a.closers, calRepo.Close)
		}
	}

	calStore := calibration.NewStore(cfg.Calibration.MaxSamples, cfg.Calibration.EnsembleWindow)
	calPipeline := calibration.NewPipeline(logger, calStore, persister, calibration.Options{
		Statistical:    cfg.Calibration.Statistical,
		Online:         cfg.Calibration.Online,
		Ensemble:       cfg.Calibration.Ensemble,
		Uncertainty:    cfg.Calibration.Uncertainty,
		BlueprintBoost: cfg.Calibration.BlueprintBoost,
		MinFitSamples:  cfg.Calibration.MinFitSamples,
		OnlineMinBatch: cfg.Calibration.OnlineMinBatch,
		LearningRate:   cfg.Calibration.LearningRate,
		EnsembleBlend:  cfg.Calibration.EnsembleBlend,
		BaseBoost:      cfg.Calibration.BaseBoost,
		MaxBoost:       cfg.Calibration.MaxBoost,
	})
	if err := calPipeline.Restore(ctx, cfg.Calibration.MaxSamples); err != nil {
		logger.Warn("restore calibration samples failed", slog.Any("error", err))
	}

	a.pipeline = engine.NewPipeline(logger, engine.Components{
		Registry: core,
		Events:   events,
		Context:  homecontext.FromConfig(logger, cfg.Context),
		Filter:   filter,
		Miner: patterns.NewMiner(logger, filter, patternStore, patterns.Options{
			Window:                  cfg.Mining.Window,
			BucketMinutes:           cfg.Mining.BucketMinutes,
			TimeOfDayMinOccurrences: cfg.Mining.TimeOfDayMinOccurrences,
			TimeOfDayMinConfidence:  cfg.Mining.TimeOfDayMinConfidence,
		}),
		Dedup: patterns.NewDeduplicator(cfg.Mining.MergeWindowMinutes),
		Validator: engine.NewCrossValidator(logger, engine.ValidatorOptions{
			HighConfidence:   cfg.Validation.HighConfidence,
			ContradictionGap: cfg.Validation.ContradictionGap,
			ReinforceMinutes: cfg.Validation.ReinforceMinutes,
			DropContradicted: cfg.Validation.DropContradicted,
		}),
		Detector: synergy.NewDetector(logger, filter, templates, synergy.Options{
			MaxSynergies:             cfg.Synergy.MaxSynergies,
			PairConfidenceFloor:      cfg.Synergy.PairConfidenceFloor,
			MaxChainDepth:            cfg.Synergy.MaxChainDepth,
			MaxDevicesPerScene:       cfg.Synergy.MaxDevicesPerScene,
			MaxDevicesPerContextType: cfg.Synergy.MaxDevicesPerContextType,
			ScheduleWindowMinutes:    cfg.Synergy.ScheduleWindowMinutes,
		}),
		Matcher:     matcher,
		Calibration: calPipeline,
		Rules:       rules,
	}, engine.Options{
		Lookback:           cfg.Analysis.Lookback,
		UpstreamTimeout:    cfg.Analysis.UpstreamTimeout,
		MinSupport:         cfg.Mining.MinSupport,
		MinSupportRatio:    cfg.Mining.MinSupportRatio,
		MinConfidence:      cfg.Mining.MinConfidence,
		DetectAnomalies:    cfg.Analysis.DetectAnomalies,
		AnomalyThreshold:   cfg.Analysis.AnomalyThreshold,
		PatternSuggestions: cfg.Analysis.PatternSuggestions,
	})

	a.service = services.NewSynergyService(logger, a.pipeline, services.Options{
		Interval:      cfg.Analysis.Interval,
		SuggestionTTL: cfg.Analysis.SuggestionTTL,
		Request:       models.AnalysisRequest{IncludeUncertainty: cfg.Analysis.IncludeUncertainty},
	}).WithFeedback(calPipeline, feedbackStore).WithPatterns(patternReader)

	if withPublisher && cfg.MQTT.Enabled {
		pub := publish.NewMQTTPublisher(cfg.MQTT, logger)
		a.service.WithPublisher(pub)
		a.closers = append(a.closers, func() error { pub.Close(); return nil })
	}
	return a, nil
}

func blueprintCorpus(cfg *config.Config, cacheProvider cache.Provider, logger *slog.Logger) blueprints.Corpus {
	if cfg.Blueprints.Endpoint != "" {
		return repo.NewBlueprintRepo(cfg.Blueprints.Endpoint, cfg.Blueprints.APIKey, cfg.Blueprints.Timeout, cacheProvider, cfg.Cache.BlueprintTTL)
	}
	corpus, err := blueprints.LoadFileCorpus(cfg.Blueprints.Path)
	if err != nil {
		logger.Warn("blueprint corpus unreadable", slog.String("path", cfg.Blueprints.Path), slog.Any("error", err))
		return nil
	}
	logger.Info("blueprint corpus loaded", slog.Int("templates", corpus.Len()))
	return corpus
}
