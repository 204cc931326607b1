package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-synergy/internal/api"
	"github.com/miradorstack/mirador-synergy/internal/config"
	"github.com/miradorstack/mirador-synergy/internal/metrics"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

func serveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers and the periodic analysis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(*configPath)
		},
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-synergy", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close(logger)

	server, err := api.NewServer(cfg.Server, api.NewHandler(logger, a.service))
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}

	var httpServer *http.Server
	if cfg.Server.HTTPAddress != "" {
		router := api.NewRouter(logger, a.service, promhttp.Handler())
		httpServer = api.NewHTTPServer(cfg.Server.HTTPAddress, router, logger, os.Stdout)
		go func() {
			logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if cfg.Analysis.Interval <= 0 {
			logger.Info("periodic analysis disabled")
			return
		}
		if err := a.service.Run(ctx); err != nil {
			logger.Error("scheduler exited", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
	}

	select {
	case <-schedulerDone:
	case <-time.After(cfg.Server.GracefulTimeout):
		logger.Warn("scheduler did not stop in time")
	}
	logger.Info("mirador-synergy stopped")
	return nil
}
