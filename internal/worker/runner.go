// Package worker runs the report pipelines in order, one outcome per
// pipeline. It is decoupled from the HTTP layer: the api package holds a
// narrow interface and calls Trigger, it never imports the concrete Runner.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/dlt-reports/internal/lock"
	"github.com/nyashahama/dlt-reports/internal/pipeline"
	"github.com/nyashahama/dlt-reports/internal/secrets"
)

// ErrRunInProgress is returned when another run holds the run lock, in this
// process or in another one sharing the lock backend.
var ErrRunInProgress = errors.New("worker: a run is already in progress")

// ─── RUN ──────────────────────────────────────────────────────────────────────

// Run is one invocation of every pipeline.
type Run struct {
	ID          uuid.UUID `json:"id"`
	Environment string    `json:"environment"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Outcomes    []Outcome `json:"outcomes"`
}

// Failed reports how many pipelines ended in StatusFailed.
func (r Run) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			n++
		}
	}
	return n
}

// ─── COLLABORATORS ────────────────────────────────────────────────────────────

// Locker guards against overlapping runs across processes. *lock.RedisLocker
// satisfies it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Recorder persists finished runs. *store.Store satisfies it.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// SettingsLoader resolves the per-run secrets. It is called once per run.
type SettingsLoader func(ctx context.Context) *secrets.Settings

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. Zero fields take the
// values from DefaultRunnerConfig.
type RunnerConfig struct {
	// PipelineTimeout is the per-pipeline context deadline.
	PipelineTimeout time.Duration

	// LockKey and LockTTL configure the optional run lock.
	LockKey string
	LockTTL time.Duration

	// Environment is stored on every Run.
	Environment string
}

// DefaultRunnerConfig returns safe production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PipelineTimeout: 10 * time.Minute,
		LockKey:         "dlt-reports:run",
		LockTTL:         30 * time.Minute,
	}
}

// Runner executes the pipelines sequentially. At most one run is in flight
// per Runner; a Locker extends that to every process sharing it.
type Runner struct {
	pipelines []pipeline.Pipeline
	load      SettingsLoader
	cfg       RunnerConfig
	logger    *slog.Logger

	locker   Locker
	recorder Recorder

	mu      sync.Mutex
	running bool
	last    *Run
	wg      sync.WaitGroup
}

// NewRunner constructs a Runner. Pipelines run in the order given.
func NewRunner(pipelines []pipeline.Pipeline, load SettingsLoader, cfg RunnerConfig, logger *slog.Logger) *Runner {
	def := DefaultRunnerConfig()
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = def.PipelineTimeout
	}
	if cfg.LockKey == "" {
		cfg.LockKey = def.LockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	return &Runner{
		pipelines: pipelines,
		load:      load,
		cfg:       cfg,
		logger:    logger,
	}
}

// WithLocker enables the cross-process run lock.
func (r *Runner) WithLocker(l Locker) *Runner {
	r.locker = l
	return r
}

// WithRecorder enables the run ledger.
func (r *Runner) WithRecorder(rec Recorder) *Runner {
	r.recorder = rec
	return r
}

// RunOnce executes every pipeline and returns the finished Run. Pipeline
// failures are reported in the outcomes, not as an error; the only errors
// are ErrRunInProgress and a cancelled ctx before anything started.
func (r *Runner) RunOnce(ctx context.Context) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	if !r.begin() {
		return Run{}, ErrRunInProgress
	}
	defer r.end()
	return r.execute(ctx, uuid.New())
}

// Trigger starts a run in the background and returns its id at once. The
// run outlives ctx's cancellation; Wait blocks until it is done.
func (r *Runner) Trigger(ctx context.Context) (uuid.UUID, error) {
	if !r.begin() {
		return uuid.Nil, ErrRunInProgress
	}

	id := uuid.New()
	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.end()
		if _, err := r.execute(runCtx, id); err != nil {
			r.logger.Warn("worker: triggered run did not start", "run_id", id, "error", err)
		}
	}()
	return id, nil
}

// Wait blocks until every triggered run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Last returns the most recently finished run, if any.
func (r *Runner) Last() (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Run{}, false
	}
	return *r.last, true
}

func (r *Runner) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// execute acquires the run lock, runs every pipeline and records the run.
func (r *Runner) execute(ctx context.Context, id uuid.UUID) (Run, error) {
	log := r.logger.With("run_id", id)

	release, err := r.acquire(ctx, log)
	if err != nil {
		return Run{}, err
	}
	defer release()

	run := Run{ID: id, Environment: r.cfg.Environment, StartedAt: time.Now()}
	log.Info("worker: run starting", "pipelines", len(r.pipelines))

	settings := r.load(ctx)
	for _, p := range r.pipelines {
		run.Outcomes = append(run.Outcomes, runPipeline(ctx, p, settings, r.cfg.PipelineTimeout, log))
	}
	run.FinishedAt = time.Now()

	log.Info("worker: run finished",
		"failed", run.Failed(),
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)

	r.mu.Lock()
	last := run
	r.last = &last
	r.mu.Unlock()

	r.record(ctx, run, log)
	return run, nil
}

// acquire takes the cross-process lock when one is configured. A lock backend
// that cannot be reached is logged and the run goes ahead unguarded.
func (r *Runner) acquire(ctx context.Context, log *slog.Logger) (func(), error) {
	noop := func() {}
	if r.locker == nil {
		return noop, nil
	}

	release, err := r.locker.Acquire(ctx, r.cfg.LockKey, r.cfg.LockTTL)
	switch {
	case errors.Is(err, lock.ErrHeld):
		log.Warn("worker: run lock held elsewhere, not running", "key", r.cfg.LockKey)
		return nil, ErrRunInProgress
	case err != nil:
		log.Error("worker: run lock unavailable, running without it", "error", err)
		return noop, nil
	}

	return func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(relCtx); err != nil {
			log.Warn("worker: failed to release run lock", "error", err)
		}
	}, nil
}

// record persists run. Ledger failures are logged, never returned.
func (r *Runner) record(ctx context.Context, run Run, log *slog.Logger) {
	if r.recorder == nil {
		return
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.recorder.RecordRun(recCtx, run); err != nil {
		log.Error("worker: failed to record run", "error", err)
	}
}
