package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nyashahama/dlt-reports/internal/api"
	"github.com/nyashahama/dlt-reports/internal/app"
	"github.com/nyashahama/dlt-reports/internal/config"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	logger := app.NewLogger(os.Getenv("ENV_VAR"), os.Stdout)
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.TriggerToken == "" {
		return errors.New("config: TRIGGER_TOKEN is required for the trigger server")
	}
	// Rebuilt now that .env and the config file have been applied.
	logger = app.LoggerFor(cfg, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port)

	// Root context cancelled by OS signal.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Runner, lock and ledger ───────────────────────────────────────────────
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var ledger api.Ledger
	if a.Store != nil {
		ledger = a.Store
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Handler: api.NewServer(a.Runner, ledger, api.Config{
			TriggerToken: cfg.TriggerToken,
			TriggerRate:  cfg.TriggerRate,
			Env:          cfg.Env,
		}, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	// ── gRPC health ───────────────────────────────────────────────────────────
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// ── One port, two protocols ───────────────────────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	mux := cmux.New(lis)
	grpcLis := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpLis := mux.Match(cmux.Any())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, cmux.ErrListenerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("server listening", "addr", lis.Addr().String())
		if err := mux.Serve(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, cmux.ErrServerClosed) {
			return fmt.Errorf("cmux serve: %w", err)
		}
		return nil
	})

	// Shutdown listener: waits for a signal or a failed server.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		mux.Close()

		// Let a triggered run finish before the ledger and lock close.
		a.Runner.Wait()

		if err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
