package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/nyashahama/dlt-reports/internal/worker"
)

// ErrNoRuns is returned by LatestRun when the ledger is empty.
var ErrNoRuns = errors.New("store: no runs recorded")

// outcomeDetail is the jsonb snapshot kept next to the flat columns.
type outcomeDetail struct {
	MessageCount int    `json:"message_count"`
	DurationMS   int64  `json:"duration_ms"`
	Reason       string `json:"reason,omitempty"`
}

// RecordRun stores run and all of its outcomes in one transaction.
// Recording the same run id twice fails on the primary key.
func (s *Store) RecordRun(ctx context.Context, run worker.Run) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_runs (id, environment, started_at, finished_at) VALUES ($1, $2, $3, $4)`,
			run.ID, run.Environment, run.StartedAt, run.FinishedAt,
		); err != nil {
			return fmt.Errorf("RecordRun: insert run: %w", err)
		}

		for i, o := range run.Outcomes {
			detail, err := json.Marshal(outcomeDetail{
				MessageCount: len(o.MessageIDs),
				DurationMS:   o.FinishedAt.Sub(o.StartedAt).Milliseconds(),
				Reason:       o.Reason,
			})
			if err != nil {
				return fmt.Errorf("RecordRun: marshal detail: %w", err)
			}

			ids := o.MessageIDs
			if ids == nil {
				ids = []string{}
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO report_outcomes
					(run_id, position, pipeline, status, reason, error, message_ids, detail, started_at, finished_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				run.ID, i, o.Pipeline, string(o.Status), o.Reason, o.Error,
				pq.Array(ids),
				pqtype.NullRawMessage{RawMessage: detail, Valid: true},
				o.StartedAt, o.FinishedAt,
			); err != nil {
				return fmt.Errorf("RecordRun: insert outcome %s: %w", o.Pipeline, err)
			}
		}
		return nil
	})
}

// LatestRun returns the most recently started run with its outcomes in
// pipeline order.
func (s *Store) LatestRun(ctx context.Context) (worker.Run, error) {
	var run worker.Run
	err := s.pool.QueryRowContext(ctx,
		`SELECT id, environment, started_at, finished_at FROM report_runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.Environment, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return worker.Run{}, ErrNoRuns
	}
	if err != nil {
		return worker.Run{}, fmt.Errorf("LatestRun: select run: %w", err)
	}

	outcomes, err := s.outcomes(ctx, run.ID)
	if err != nil {
		return worker.Run{}, err
	}
	run.Outcomes = outcomes
	return run, nil
}

func (s *Store) outcomes(ctx context.Context, runID uuid.UUID) ([]worker.Outcome, error) {
	rows, err := s.pool.QueryContext(ctx,
		`SELECT pipeline, status, reason, error, message_ids, started_at, finished_at
		   FROM report_outcomes WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("LatestRun: select outcomes: %w", err)
	}
	defer rows.Close()

	var out []worker.Outcome
	for rows.Next() {
		var (
			o      worker.Outcome
			status string
			ids    []string
		)
		if err := rows.Scan(&o.Pipeline, &status, &o.Reason, &o.Error, pq.Array(&ids), &o.StartedAt, &o.FinishedAt); err != nil {
			return nil, fmt.Errorf("LatestRun: scan outcome: %w", err)
		}
		o.Status = worker.Status(status)
		o.MessageIDs = append([]string{}, ids...)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LatestRun: iterate outcomes: %w", err)
	}
	return out, nil
}
