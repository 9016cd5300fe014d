// Package store is the Postgres run ledger: one row per run and one row per
// pipeline outcome. The worker writes through RecordRun; the api package
// reads LatestRun.
//
// Dependency rule: store imports worker for the Run type only. It never
// imports api, pipeline, or email.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Store holds the connection pool used for both reads and transactions.
type Store struct {
	pool *sql.DB
}

// New creates a Store from a live connection pool.
func New(pool *sql.DB) *Store {
	return &Store{pool: pool}
}

// Open opens and verifies a Postgres pool for dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// The ledger sees a handful of writes per run.
	pool.SetMaxOpenConns(5)
	pool.SetMaxIdleConns(2)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return New(pool), nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS report_runs (
	id          uuid PRIMARY KEY,
	environment text        NOT NULL,
	started_at  timestamptz NOT NULL,
	finished_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS report_outcomes (
	run_id      uuid        NOT NULL REFERENCES report_runs (id) ON DELETE CASCADE,
	position    int         NOT NULL,
	pipeline    text        NOT NULL,
	status      text        NOT NULL,
	reason      text        NOT NULL DEFAULT '',
	error       text        NOT NULL DEFAULT '',
	message_ids text[]      NOT NULL DEFAULT '{}',
	detail      jsonb,
	started_at  timestamptz NOT NULL,
	finished_at timestamptz NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS report_runs_started_at_idx ON report_runs (started_at DESC);
`

// EnsureSchema creates the ledger tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// txFunc receives a transaction. Returning a non-nil error causes withTx to
// roll back.
type txFunc func(ctx context.Context, tx *sql.Tx) error

// withTx begins a transaction, passes it to fn, and commits on success or
// rolls back on any error (including panics).
func (s *Store) withTx(ctx context.Context, fn txFunc) error {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	// Roll back on panic so the connection is never left in a broken state.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: fn error: %w; rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
