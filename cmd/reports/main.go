// Command reports runs every report pipeline once and exits. It is meant to
// be started by a scheduler. A failed pipeline is logged and reported in the
// run summary but does not change the exit code; only configuration or setup
// failures exit non-zero.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nyashahama/dlt-reports/internal/app"
	"github.com/nyashahama/dlt-reports/internal/config"
	"github.com/nyashahama/dlt-reports/internal/worker"
)

func main() {
	logger := app.NewLogger(os.Getenv("ENV_VAR"), os.Stdout)
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// Rebuilt now that .env and the config file have been applied.
	logger = app.LoggerFor(cfg, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("config loaded", "env", cfg.Env, "production", cfg.IsProduction())

	// A scheduler-imposed deadline arrives as SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Runner.RunOnce(ctx)
	switch {
	case errors.Is(err, worker.ErrRunInProgress):
		logger.Warn("another run is in progress, exiting")
		return nil
	case err != nil:
		return fmt.Errorf("run: %w", err)
	}

	for _, o := range result.Outcomes {
		logger.Info("outcome",
			"pipeline", o.Pipeline,
			"status", o.Status,
			"reason", o.Reason,
			"messages", len(o.MessageIDs),
			"error", o.Error,
		)
	}
	logger.Info("run complete", "run_id", result.ID, "failed", result.Failed())
	return nil
}
