// Package api implements the HTTP surface of the long-running reports
// service: a health probe, a token-guarded trigger for an out-of-schedule
// run, and a view of the latest run. Handlers are methods on *Server.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nyashahama/dlt-reports/internal/worker"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// TriggerToken is the bearer token for POST /api/runs. Empty disables
	// the trigger.
	TriggerToken string

	// TriggerRate is the minimum interval between accepted triggers.
	TriggerRate time.Duration

	// Env is "production" or anything else. /healthz reports it.
	Env string
}

// Runs is the narrow view of *worker.Runner the handlers use.
type Runs interface {
	Trigger(ctx context.Context) (uuid.UUID, error)
	Last() (worker.Run, bool)
}

// Ledger reads recorded runs. *store.Store satisfies it.
type Ledger interface {
	LatestRun(ctx context.Context) (worker.Run, error)
}

// Server holds all shared dependencies.
type Server struct {
	runs Runs

	// ledger is optional; without it the latest run comes from memory.
	ledger Ledger

	limiter *rate.Limiter
	cfg     Config
	logger  *slog.Logger
}

// NewServer constructs the Server and wires the chi router. ledger may be nil.
func NewServer(runs Runs, ledger Ledger, cfg Config, logger *slog.Logger) http.Handler {
	if cfg.TriggerRate <= 0 {
		cfg.TriggerRate = time.Minute
	}
	s := &Server{
		runs:    runs,
		ledger:  ledger,
		limiter: rate.NewLimiter(rate.Every(cfg.TriggerRate), 1),
		cfg:     cfg,
		logger:  logger,
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/healthz", s.handleHealth)

	// ── Runs ──────────────────────────────────────────────────────────────────
	r.Route("/api/runs", func(r chi.Router) {
		r.With(s.requireBearer, s.throttle).Post("/", s.handleTriggerRun)
		r.Get("/latest", s.handleLatestRun)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok", "env": s.cfg.Env})
}
