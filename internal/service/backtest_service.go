// Package service exposes the backtesting operations as a thin facade over
// the job manager, with request/response shapes suitable for any transport.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stratlab/internal/jobs"
	"github.com/yourusername/stratlab/internal/marketdata"
	"github.com/yourusername/stratlab/internal/models"
	"github.com/yourusername/stratlab/internal/universe"
)

// BacktestService wraps the job manager with validation helpers
type BacktestService struct {
	manager   *jobs.Manager
	validator *universe.Validator
	coverage  marketdata.CoverageLookup
	logger    *logrus.Logger
}

// NewBacktestService creates the service facade
func NewBacktestService(manager *jobs.Manager, validator *universe.Validator, coverage marketdata.CoverageLookup, logger *logrus.Logger) *BacktestService {
	if logger == nil {
		logger = logrus.New()
	}
	return &BacktestService{manager: manager, validator: validator, coverage: coverage, logger: logger}
}

// SubmitResponse acknowledges an accepted job
type SubmitResponse struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// StatusResponse reports job progress
type StatusResponse struct {
	JobID          uuid.UUID        `json:"job_id"`
	Status         models.JobStatus `json:"status"`
	Progress       float64          `json:"progress"`
	FoldsCompleted int              `json:"folds_completed"`
	FoldsTotal     int              `json:"folds_total"`
	CreatedAt      time.Time        `json:"created_at"`
	Error          string           `json:"error,omitempty"`
}

// StrategyValidationResponse is the outcome of a dry-run strategy check
type StrategyValidationResponse struct {
	Valid                  bool     `json:"valid"`
	Errors                 []string `json:"errors,omitempty"`
	Warnings               []string `json:"warnings,omitempty"`
	EstimatedTradesPerYear int      `json:"estimated_trades_per_year"`
	RiskLevel              string   `json:"risk_level"`
}

// SubmitBacktest validates and enqueues a new backtest job
func (s *BacktestService) SubmitBacktest(ctx context.Context, cfg models.BacktestConfiguration) (SubmitResponse, error) {
	id, err := s.manager.Submit(ctx, cfg)
	if err != nil {
		var cfgErr *models.ConfigurationError
		if errors.As(err, &cfgErr) {
			s.logger.WithField("field", cfgErr.Field).Info("Backtest submission rejected")
		}
		return SubmitResponse{}, err
	}
	return SubmitResponse{JobID: id, Status: models.JobStatusPending}, nil
}

// GetStatus returns the job's progress
func (s *BacktestService) GetStatus(ctx context.Context, id uuid.UUID) (StatusResponse, error) {
	job, err := s.manager.Status(ctx, id)
	if err != nil {
		return StatusResponse{}, err
	}
	return StatusResponse{
		JobID:          job.ID,
		Status:         job.Status,
		Progress:       job.Progress(),
		FoldsCompleted: job.FoldsCompleted,
		FoldsTotal:     job.FoldsTotal,
		CreatedAt:      job.CreatedAt,
		Error:          job.Error,
	}, nil
}

// GetResult returns the finished result, or ErrResultNotReady
func (s *BacktestService) GetResult(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	return s.manager.Result(ctx, id)
}

// CancelJob requests cancellation of a pending or running job
func (s *BacktestService) CancelJob(ctx context.Context, id uuid.UUID) error {
	return s.manager.Cancel(ctx, id)
}

// ValidateUniverse checks symbol coverage without creating a job
func (s *BacktestService) ValidateUniverse(ctx context.Context, symbols []string, start, end time.Time) universe.Report {
	return s.validator.Validate(ctx, symbols, start, end, s.coverage)
}

// ValidateStrategy dry-runs strategy validation and adds rough planning
// estimates. The trade estimate assumes one opportunity per symbol per week,
// scaled down by how restrictive the entry conditions are.
func (s *BacktestService) ValidateStrategy(strat models.TradingStrategy, universeSize int) StrategyValidationResponse {
	resp := StrategyValidationResponse{
		Valid:    true,
		Warnings: strategyWarnings(strat),
	}
	if err := strat.Validate(); err != nil {
		resp.Valid = false
		resp.Errors = append(resp.Errors, err.Error())
		return resp
	}

	resp.EstimatedTradesPerYear = estimateTradesPerYear(strat, universeSize)
	resp.RiskLevel = classifyRiskLevel(strat.RiskManagement)
	return resp
}

// strategyWarnings flags configurations that are legal but likely not what
// the author intended.
func strategyWarnings(strat models.TradingStrategy) []string {
	var warnings []string
	for _, rule := range strat.Rules {
		if rule.Weight == 0 {
			warnings = append(warnings, fmt.Sprintf("rule %q has zero weight and never influences the signal", rule.ID))
		}
	}
	rm := strat.RiskManagement
	if len(strat.ExitConditions) == 0 && rm.StopLossPct <= 0 && rm.TakeProfitPct <= 0 {
		warnings = append(warnings, "no exit conditions or protective stops; positions only close on a drawdown breach or at the window end")
	}
	if rm.DrawdownLimit <= 0 {
		warnings = append(warnings, "no drawdown limit configured; losses are bounded only by position sizing")
	}
	return warnings
}

func estimateTradesPerYear(strat models.TradingStrategy, universeSize int) int {
	if universeSize <= 0 {
		universeSize = 1
	}
	weeklyOpportunities := universeSize * 52
	divisor := 1 + len(strat.EntryConditions)
	estimate := weeklyOpportunities / divisor
	if strat.RiskManagement.MaxDailyTrades > 0 {
		cap := strat.RiskManagement.MaxDailyTrades * 252
		if estimate > cap {
			estimate = cap
		}
	}
	return estimate
}

func classifyRiskLevel(rm models.RiskManagement) string {
	switch {
	case rm.StopLossPct <= 0 && rm.DrawdownLimit <= 0:
		return "high"
	case rm.MaxPositionSize > 20 || rm.StopLossPct > 10:
		return "medium"
	default:
		return "low"
	}
}
