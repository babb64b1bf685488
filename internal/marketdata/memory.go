package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/stratlab/internal/models"
)

// InMemorySource holds bars and indicator series in memory. It backs tests,
// scripted scenarios and the CLI fixture mode, and doubles as a coverage
// lookup for universe validation.
type InMemorySource struct {
	mu         sync.RWMutex
	bars       map[string][]models.Bar
	indicators map[string]map[string][]indicatorPoint
}

type indicatorPoint struct {
	ts    time.Time
	value float64
}

// NewInMemorySource creates an empty in-memory source
func NewInMemorySource() *InMemorySource {
	return &InMemorySource{
		bars:       make(map[string][]models.Bar),
		indicators: make(map[string]map[string][]indicatorPoint),
	}
}

// AddBars appends bars for a symbol, keeping the series sorted by time
func (s *InMemorySource) AddBars(symbol string, bars []models.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[symbol] = append(s.bars[symbol], bars...)
	sort.Slice(s.bars[symbol], func(i, j int) bool {
		return s.bars[symbol][i].Timestamp.Before(s.bars[symbol][j].Timestamp)
	})
}

// SetIndicator records an indicator value at a timestamp
func (s *InMemorySource) SetIndicator(symbol, name string, ts time.Time, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indicators[symbol] == nil {
		s.indicators[symbol] = make(map[string][]indicatorPoint)
	}
	series := append(s.indicators[symbol][name], indicatorPoint{ts: ts, value: value})
	sort.Slice(series, func(i, j int) bool { return series[i].ts.Before(series[j].ts) })
	s.indicators[symbol][name] = series
}

// GetBars returns bars within [start, end] in chronological order
func (s *InMemorySource) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Bar
	for _, bar := range s.bars[symbol] {
		if bar.Timestamp.Before(start) || bar.Timestamp.After(end) {
			continue
		}
		out = append(out, bar)
	}
	return out, nil
}

// GetIndicator returns the most recent value at or before asOf
func (s *InMemorySource) GetIndicator(ctx context.Context, symbol, name string, asOf time.Time, lookback int) (float64, error) {
	_ = ctx
	_ = lookback
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.indicators[symbol][name]
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].ts.After(asOf) {
			return series[i].value, nil
		}
	}
	return 0, ErrIndicatorUnavailable
}

// GetCoverage reports the fraction of the range covered by stored bars,
// assuming one bar per trading day (5 of 7 calendar days).
func (s *InMemorySource) GetCoverage(ctx context.Context, symbol string, start, end time.Time) (Coverage, bool) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.bars[symbol]
	if len(series) == 0 {
		return Coverage{}, false
	}
	count := 0
	var first, last time.Time
	for _, bar := range series {
		if bar.Timestamp.Before(start) || bar.Timestamp.After(end) {
			continue
		}
		if count == 0 {
			first = bar.Timestamp
		}
		last = bar.Timestamp
		count++
	}
	if count == 0 {
		return Coverage{FirstAvailable: series[0].Timestamp, LastAvailable: series[len(series)-1].Timestamp}, true
	}
	expected := end.Sub(start).Hours() / 24.0 * 5.0 / 7.0
	fraction := 1.0
	if expected > 0 {
		fraction = float64(count) / expected
		if fraction > 1 {
			fraction = 1
		}
	}
	return Coverage{Fraction: fraction, FirstAvailable: first, LastAvailable: last}, true
}
