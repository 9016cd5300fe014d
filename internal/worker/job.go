package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nyashahama/dlt-reports/internal/pipeline"
	"github.com/nyashahama/dlt-reports/internal/secrets"
)

// Status is the final state of one pipeline within a run.
type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome records what one pipeline did during a run.
type Outcome struct {
	Pipeline   string    `json:"pipeline"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	MessageIDs []string  `json:"message_ids"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// runPipeline executes p under its own deadline and turns whatever happens,
// including a panic, into an Outcome. It never returns an error: one
// pipeline's failure must not stop the next.
func runPipeline(ctx context.Context, p pipeline.Pipeline, s *secrets.Settings, timeout time.Duration, log *slog.Logger) (out Outcome) {
	log = log.With("pipeline", p.Name())
	out = Outcome{Pipeline: p.Name(), StartedAt: time.Now(), MessageIDs: []string{}}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("worker: pipeline panicked", "panic", rec, "stack", string(debug.Stack()))
			out.Status = StatusFailed
			out.Error = fmt.Sprintf("panic: %v", rec)
		}
		out.FinishedAt = time.Now()
	}()

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info("worker: pipeline starting")
	res, err := p.Run(pctx, s)
	out.MessageIDs = append(out.MessageIDs, res.MessageIDs...)

	switch {
	case err != nil:
		out.Status = StatusFailed
		out.Error = err.Error()
		log.Error("worker: pipeline failed", "error", err, "sent", res.Sent)
	case res.Skipped:
		out.Status = StatusSkipped
		out.Reason = res.Reason
		log.Info("worker: pipeline skipped", "reason", res.Reason)
	default:
		out.Status = StatusSent
		log.Info("worker: pipeline finished", "sent", res.Sent)
	}
	return out
}
