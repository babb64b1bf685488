package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a backtest job
type JobStatus string

// Job lifecycle states. PENDING -> RUNNING -> {COMPLETED|FAILED}, and
// PENDING|RUNNING -> CANCELLED. Terminal states never transition again.
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the monotonic status machine
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusCancelled
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	}
	return false
}

// PerformanceMetrics is the aggregate result of a completed job
type PerformanceMetrics struct {
	TotalReturn             float64 `json:"total_return"`
	AnnualizedReturn        float64 `json:"annualized_return"`
	Volatility              float64 `json:"volatility"`
	SharpeRatio             float64 `json:"sharpe_ratio"`
	MaxDrawdown             float64 `json:"max_drawdown"`
	WinRate                 float64 `json:"win_rate"`
	BenchmarkRelativeReturn float64 `json:"benchmark_relative_return"`
	TotalTrades             int     `json:"total_trades"`
	FoldCount               int     `json:"fold_count"`
	ConsistencyScore        float64 `json:"consistency_score"`
}

// MonteCarloSummary is the trade-resampling robustness check attached to a
// completed result.
type MonteCarloSummary struct {
	Iterations      int     `json:"iterations"`
	MeanFinalEquity float64 `json:"mean_final_equity"`
	MedianReturn    float64 `json:"median_return"`
	VaR95           float64 `json:"var_95"`
	VaR99           float64 `json:"var_99"`
	WorstReturn     float64 `json:"worst_return"`
	BestReturn      float64 `json:"best_return"`
}

// BacktestResult bundles everything a completed job produces
type BacktestResult struct {
	Metrics     PerformanceMetrics `json:"metrics"`
	TradeLog    []Trade            `json:"trade_log"`
	EquityCurve []EquityPoint      `json:"equity_curve"`
	Folds       []Fold             `json:"folds"`
	MonteCarlo  *MonteCarloSummary `json:"monte_carlo,omitempty"`
	Partial     bool               `json:"partial"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// BacktestJob is the persisted job record. All writes to a record are
// serialized by job id, so the struct carries no locking of its own.
type BacktestJob struct {
	ID             uuid.UUID             `json:"id"`
	Status         JobStatus             `json:"status"`
	Configuration  BacktestConfiguration `json:"configuration"`
	CreatedAt      time.Time             `json:"created_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	Result         *BacktestResult       `json:"result,omitempty"`
	Error          string                `json:"error,omitempty"`
	FoldsCompleted int                   `json:"folds_completed"`
	FoldsTotal     int                   `json:"folds_total"`
}

// Transition moves the job to the next status, enforcing monotonicity
func (j *BacktestJob) Transition(next JobStatus) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid job transition %s -> %s", j.Status, next)
	}
	j.Status = next
	now := time.Now().UTC()
	switch next {
	case JobStatusRunning:
		j.StartedAt = &now
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		j.CompletedAt = &now
	}
	return nil
}

// Elapsed returns wall-clock time spent on the job so far. Callers use this
// to implement their own timeout policy.
func (j *BacktestJob) Elapsed() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}

// Progress returns the completed fold fraction in [0,1]
func (j *BacktestJob) Progress() float64 {
	if j.FoldsTotal == 0 {
		return 0
	}
	return float64(j.FoldsCompleted) / float64(j.FoldsTotal)
}
