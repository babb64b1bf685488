// Package jobs owns the backtest job lifecycle: submission, the worker pool
// that executes jobs, status tracking, cancellation and result retrieval.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/stratlab/internal/models"
)

// JobStore persists job records. Implementations must be safe for concurrent
// use; the manager serializes writes per job id but reads happen from any
// goroutine.
type JobStore interface {
	// Put inserts or replaces the record for job.ID
	Put(ctx context.Context, job *models.BacktestJob) error
	// Get returns the record or models.ErrJobNotFound
	Get(ctx context.Context, id uuid.UUID) (*models.BacktestJob, error)
	// List returns all records, optionally filtered by status
	List(ctx context.Context, statuses ...models.JobStatus) ([]*models.BacktestJob, error)
	// DeleteTerminalBefore removes terminal jobs that completed before cutoff
	// and returns how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// InMemoryJobStore keeps job records in a map. It backs single-process
// deployments and tests; production deployments use PostgresJobStore.
type InMemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.BacktestJob
}

// NewInMemoryJobStore creates an empty in-memory store
func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{jobs: make(map[uuid.UUID]*models.BacktestJob)}
}

// Put stores a copy of the record
func (s *InMemoryJobStore) Put(_ context.Context, job *models.BacktestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get returns a copy of the record so callers cannot mutate stored state
func (s *InMemoryJobStore) Get(_ context.Context, id uuid.UUID) (*models.BacktestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// List returns copies of all records matching the status filter
func (s *InMemoryJobStore) List(_ context.Context, statuses ...models.JobStatus) ([]*models.BacktestJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.BacktestJob
	for _, job := range s.jobs {
		if len(statuses) > 0 && !statusMatches(job.Status, statuses) {
			continue
		}
		out = append(out, cloneJob(job))
	}
	return out, nil
}

// DeleteTerminalBefore removes terminal jobs completed before cutoff
func (s *InMemoryJobStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func statusMatches(status models.JobStatus, statuses []models.JobStatus) bool {
	for _, s := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

// cloneJob copies the record. Result contents are immutable once attached,
// so sharing the inner slices between copies is safe.
func cloneJob(job *models.BacktestJob) *models.BacktestJob {
	clone := *job
	if job.StartedAt != nil {
		startedAt := *job.StartedAt
		clone.StartedAt = &startedAt
	}
	if job.CompletedAt != nil {
		completedAt := *job.CompletedAt
		clone.CompletedAt = &completedAt
	}
	if job.Result != nil {
		result := *job.Result
		clone.Result = &result
	}
	return &clone
}
