package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-fpl/data/internal/app"
	"github.com/open-fpl/data/internal/config"
	"github.com/open-fpl/data/internal/observability"
	"github.com/open-fpl/data/internal/platform/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSON(logging.LevelError).Error("load config", "error", err)
		return 1
	}

	logger := logging.NewJSON(cfg.LogLevel).With("service", cfg.ServiceName, "component", "harvester")
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("uptrace shutdown failed", "error", err)
		}
	}()

	stopProfiling, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		return 1
	}
	defer func() {
		if err := stopProfiling(); err != nil {
			logger.Warn("pyroscope stop failed", "error", err)
		}
	}()

	harvester, err := app.NewHarvester(cfg, logger)
	if err != nil {
		logger.Error("build harvester", "error", err)
		return 1
	}
	defer func() {
		if err := harvester.Close(); err != nil {
			logger.Warn("close harvester resources", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := harvester.Service.Run(ctx)
	if err != nil {
		logger.Error("harvest failed",
			"run_id", result.RunID,
			"gameweek_id", result.GameweekID,
			"storage", harvester.Storage,
			"error", err,
		)
		return 1
	}

	logger.Info("harvest finished",
		"run_id", result.RunID,
		"gameweek_id", result.GameweekID,
		"storage", harvester.Storage,
		"harvested", result.Harvested,
		"failed", result.Failed,
		"elapsed", result.Elapsed,
	)
	return 0
}
