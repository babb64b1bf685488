// Package marketdata defines the external data collaborators the simulation
// engine consumes: historical bars, indicator values and coverage lookups.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/stratlab/internal/models"
)

// ErrIndicatorUnavailable is returned when an indicator has no value for the
// requested timestamp, typically because the lookback window is not yet full.
// The evaluator treats this as "skip the rule", never as a failure.
var ErrIndicatorUnavailable = errors.New("indicator value unavailable")

// BarSource provides historical OHLCV bars in chronological order
type BarSource interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error)
}

// IndicatorSource provides indicator values as of a timestamp
type IndicatorSource interface {
	GetIndicator(ctx context.Context, symbol, name string, asOf time.Time, lookback int) (float64, error)
}

// Coverage describes how much of a date range a symbol's history covers
type Coverage struct {
	Fraction       float64
	FirstAvailable time.Time
	LastAvailable  time.Time
}

// CoverageLookup reports data coverage for universe validation
type CoverageLookup interface {
	GetCoverage(ctx context.Context, symbol string, start, end time.Time) (Coverage, bool)
}
