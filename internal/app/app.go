// Package app wires configuration into a ready Runner. Both entry points
// build through here so the one-shot job and the trigger server behave the
// same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ses"

	"github.com/nyashahama/dlt-reports/internal/config"
	"github.com/nyashahama/dlt-reports/internal/dltapi"
	"github.com/nyashahama/dlt-reports/internal/email"
	"github.com/nyashahama/dlt-reports/internal/lock"
	"github.com/nyashahama/dlt-reports/internal/pipeline"
	"github.com/nyashahama/dlt-reports/internal/render"
	"github.com/nyashahama/dlt-reports/internal/secrets"
	"github.com/nyashahama/dlt-reports/internal/store"
	"github.com/nyashahama/dlt-reports/internal/worker"
)

// NewLogger returns a JSON logger at Info in production and a text logger at
// Debug everywhere else.
func NewLogger(env string, w io.Writer) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// LoggerFor builds the process logger from loaded configuration, so an
// environment set in .env or the YAML file is honoured.
func LoggerFor(cfg *config.Config, w io.Writer) *slog.Logger {
	return NewLogger(cfg.Env, w)
}

// App is the assembled job. Store is nil without DATABASE_URL.
type App struct {
	Runner *worker.Runner
	Store  *store.Store

	closers []io.Closer
}

// Close releases the database pool and Redis client.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// Build resolves AWS clients and the optional lock and ledger, then returns
// the Runner with all three pipelines in their fixed order.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("app: load aws config: %w", err)
	}

	secretStore := secrets.NewAWSStore(secretsmanager.NewFromConfig(awsCfg))
	sender := NewSender(cfg, awsCfg, logger)

	a := &App{}
	runner := worker.NewRunner(
		Pipelines(cfg, sender, logger),
		func(ctx context.Context) *secrets.Settings {
			return secrets.Load(ctx, secretStore, cfg.Secrets, cfg.IsProduction(), logger)
		},
		worker.RunnerConfig{
			PipelineTimeout: cfg.PipelineTimeout,
			LockTTL:         cfg.RunLockTTL,
			Environment:     cfg.Env,
		},
		logger,
	)

	// ── Run lock (Redis) ──────────────────────────────────────────────────────
	if cfg.RedisURL != "" {
		client, err := lock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, client)
		runner.WithLocker(lock.NewRedisLocker(client))
		logger.Info("app: run lock enabled", "backend", "redis")
	}

	// ── Run ledger (Postgres) ─────────────────────────────────────────────────
	if cfg.DatabaseURL != "" {
		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, st)
		if err := st.EnsureSchema(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.Store = st
		runner.WithRecorder(st)
		logger.Info("app: run ledger enabled")
	}

	a.Runner = runner
	return a, nil
}

// NewSender picks the email provider. The provider not chosen as primary is
// used as the fallback when it is configured.
func NewSender(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) email.Sender {
	sesSender := email.NewSESSender(ses.NewFromConfig(awsCfg))

	if cfg.EmailProvider == "resend" {
		logger.Info("email: using Resend with SES fallback")
		return email.NewFallbackSender(email.NewResendClient(cfg.ResendAPIKey, ""), sesSender, logger)
	}
	if cfg.ResendAPIKey != "" {
		logger.Info("email: using SES with Resend fallback")
		return email.NewFallbackSender(sesSender, email.NewResendClient(cfg.ResendAPIKey, ""), logger)
	}
	logger.Info("email: using SES only")
	return sesSender
}

// Pipelines returns daily sales, API totals and invoicing, in that order,
// sharing one set of dependencies.
func Pipelines(cfg *config.Config, sender email.Sender, logger *slog.Logger) []pipeline.Pipeline {
	deps := pipeline.DepsFromConfig(cfg)
	deps.Sender = sender
	deps.Logger = logger
	deps.NewAPI = func(c secrets.APICredentials) pipeline.APIClient {
		return dltapi.NewClient(cfg.APIBaseURL, dltapi.Credentials{Email: c.Email, Password: c.Password}, cfg.HTTPTimeout)
	}
	deps.NewRenderer = func(c secrets.RendererCredentials) render.Renderer {
		return render.NewClient(cfg.RenderURL, c.Username, c.Password, cfg.HTTPTimeout)
	}

	return []pipeline.Pipeline{
		pipeline.NewDailySales(deps),
		pipeline.NewAPITotals(deps),
		pipeline.NewInvoicing(deps, cfg.Invoicing),
	}
}
