package database

import (
	"context"
	"fmt"

	"github.com/yourusername/stratlab/internal/config"
)

// Initialize creates a database connection pool and ensures the job table
// exists. The schema is small enough that a single idempotent DDL statement
// replaces a migration tool.
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	ddl := `
		CREATE TABLE IF NOT EXISTS backtest_jobs (
			job_id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	if _, err := db.pool.Exec(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create backtest_jobs table: %w", err)
	}

	idx := `CREATE INDEX IF NOT EXISTS idx_backtest_jobs_status ON backtest_jobs (status)`
	if _, err := db.pool.Exec(ctx, idx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create status index: %w", err)
	}

	return db, nil
}
