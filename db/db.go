// Package db stores the optional sync run history in Postgres: connection helpers,
// schema migration, the run store and its retention job.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DB_DSN")
	}
	dbc, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	dbc.SetMaxOpenConns(5)
	dbc.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbc.PingContext(pctx); err != nil {
		_ = dbc.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return dbc, nil
}

// Migrate applies the schema with idempotent statements. It is the fallback when
// versioned migrations cannot run (e.g. a database role without lock privileges).
func Migrate(ctx context.Context, dbc *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			correlation_id TEXT,
			window_after TIMESTAMPTZ NOT NULL,
			window_before TIMESTAMPTZ NOT NULL,
			member_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_status ON sync_runs(status)`,
	}
	for i, s := range stmts {
		if _, err := dbc.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
