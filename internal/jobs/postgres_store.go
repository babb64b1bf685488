package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/stratlab/internal/database"
	"github.com/yourusername/stratlab/internal/models"
)

// PostgresJobStore persists job records as JSONB rows. The whole record is
// written on every Put, which keeps the schema independent of the job shape.
type PostgresJobStore struct {
	db *database.DB
}

// NewPostgresJobStore creates a job store backed by PostgreSQL
func NewPostgresJobStore(db *database.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// Put inserts or replaces the record for job.ID
func (s *PostgresJobStore) Put(ctx context.Context, job *models.BacktestJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	query := `
		INSERT INTO backtest_jobs (job_id, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status, payload = EXCLUDED.payload, updated_at = NOW()
	`
	if _, err := s.db.Exec(ctx, query, job.ID, string(job.Status), payload, job.CreatedAt); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the record or models.ErrJobNotFound
func (s *PostgresJobStore) Get(ctx context.Context, id uuid.UUID) (*models.BacktestJob, error) {
	query := `SELECT payload FROM backtest_jobs WHERE job_id = $1`

	var payload []byte
	if err := s.db.QueryRow(ctx, query, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	job := &models.BacktestJob{}
	if err := json.Unmarshal(payload, job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return job, nil
}

// List returns all records, optionally filtered by status
func (s *PostgresJobStore) List(ctx context.Context, statuses ...models.JobStatus) ([]*models.BacktestJob, error) {
	query := `SELECT payload FROM backtest_jobs ORDER BY created_at DESC`
	args := []any{}
	if len(statuses) > 0 {
		query = `SELECT payload FROM backtest_jobs WHERE status = ANY($1) ORDER BY created_at DESC`
		names := make([]string, len(statuses))
		for i, status := range statuses {
			names[i] = string(status)
		}
		args = append(args, names)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.BacktestJob
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		job := &models.BacktestJob{}
		if err := json.Unmarshal(payload, job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteTerminalBefore removes terminal jobs that completed before cutoff
func (s *PostgresJobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM backtest_jobs
		WHERE status = ANY($1) AND (payload->>'completed_at')::timestamptz < $2
	`
	terminal := []string{
		string(models.JobStatusCompleted),
		string(models.JobStatusFailed),
		string(models.JobStatusCancelled),
	}
	tag, err := s.db.Exec(ctx, query, terminal, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
