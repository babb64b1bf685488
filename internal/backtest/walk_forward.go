package backtest

import (
	"time"

	"github.com/yourusername/stratlab/internal/models"
)

// DefaultTradingDaysPerMonth estimates trading days when checking the
// min_training_samples requirement.
const DefaultTradingDaysPerMonth = 21

// Partitioner slices a date range into walk-forward folds
type Partitioner struct {
	TradingDaysPerMonth int
}

// NewPartitioner creates a partitioner with the default trading-day estimate
func NewPartitioner() *Partitioner {
	return &Partitioner{TradingDaysPerMonth: DefaultTradingDaysPerMonth}
}

// Partition produces the ordered fold sequence. Each fold's training window
// spans training_period_months, its validation window immediately follows,
// and the next fold starts step_size_months after the previous fold's start.
// Partitioning stops once a validation window would exceed end. Validation
// windows never overlap, which rules out lookahead by construction.
func (p *Partitioner) Partition(start, end time.Time, cfg models.WalkForwardConfig) ([]models.Fold, error) {
	daysPerMonth := p.TradingDaysPerMonth
	if daysPerMonth <= 0 {
		daysPerMonth = DefaultTradingDaysPerMonth
	}

	estimatedSamples := cfg.TrainingPeriodMonths * daysPerMonth
	if cfg.MinTrainingSamples > 0 && estimatedSamples < cfg.MinTrainingSamples {
		return nil, &models.InsufficientDataError{
			Required:  cfg.MinTrainingSamples,
			Available: estimatedSamples,
		}
	}

	var folds []models.Fold
	for foldStart := start; ; foldStart = foldStart.AddDate(0, cfg.StepSizeMonths, 0) {
		trainEnd := foldStart.AddDate(0, cfg.TrainingPeriodMonths, 0)
		valEnd := trainEnd.AddDate(0, cfg.ValidationPeriodMonths, 0)
		if valEnd.After(end) {
			break
		}
		folds = append(folds, models.Fold{
			Index:           len(folds),
			TrainingStart:   foldStart,
			TrainingEnd:     trainEnd,
			ValidationStart: trainEnd,
			ValidationEnd:   valEnd,
		})
	}

	if len(folds) == 0 {
		return nil, models.NewDataError("date range %s to %s is too short for a %d+%d month walk-forward fold",
			start.Format("2006-01-02"), end.Format("2006-01-02"),
			cfg.TrainingPeriodMonths, cfg.ValidationPeriodMonths)
	}
	return folds, nil
}
