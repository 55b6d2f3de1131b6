// Package logstore implements the Log/Metric Store (spec §4.F): an
// append-only, per-function substrate for execution records and generic
// log rows, backed by the db.Database abstraction so the same code runs
// against SQLite or Postgres.
package logstore

import (
	"context"
	"fmt"

	"github.com/oriys/fncore/internal/db"
)

// Store owns the two tables backing the Observability Store: executions
// (owned conceptually by the Function Executor) and log_entries (the
// Observability Store's own generic log rows).
type Store struct {
	conn db.Database
}

// Open wraps conn and ensures the schema exists.
func Open(ctx context.Context, conn db.Database) (*Store, error) {
	s := &Store{conn: conn}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("logstore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			function_id TEXT NOT NULL,
			start_time BIGINT NOT NULL,
			end_time BIGINT NOT NULL DEFAULT 0,
			has_ended BOOLEAN NOT NULL DEFAULT FALSE,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT NOT NULL DEFAULT '',
			console_output TEXT NOT NULL DEFAULT '[]',
			metrics TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_function_start ON executions (function_id, start_time DESC)`,
		`CREATE TABLE IF NOT EXISTS log_entries (
			id TEXT PRIMARY KEY,
			function_id TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata TEXT,
			request_id TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_log_entries_function_ts ON log_entries (function_id, timestamp DESC, id DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.conn.Close() }
