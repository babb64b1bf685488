package marketdata

import (
	"context"
	"testing"
	"time"
)

// countingSource wraps an indicator source and counts upstream calls
type countingSource struct {
	inner IndicatorSource
	calls int
}

func (c *countingSource) GetIndicator(ctx context.Context, symbol, name string, asOf time.Time, lookback int) (float64, error) {
	c.calls++
	return c.inner.GetIndicator(ctx, symbol, name, asOf, lookback)
}

func TestCachedIndicatorSourceMemoizes(t *testing.T) {
	inner := NewInMemorySource()
	inner.SetIndicator("AAPL", "rsi", day(1), 55)
	counting := &countingSource{inner: inner}
	cached := NewCachedIndicatorSource(counting, time.Minute)

	for i := 0; i < 5; i++ {
		value, err := cached.GetIndicator(context.Background(), "AAPL", "rsi", day(2), 14)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != 55 {
			t.Fatalf("expected 55, got %f", value)
		}
	}

	if counting.calls != 1 {
		t.Errorf("expected a single upstream call, got %d", counting.calls)
	}
	hits, misses := cached.Stats()
	if hits != 4 || misses != 1 {
		t.Errorf("expected 4 hits and 1 miss, got %d/%d", hits, misses)
	}
}

func TestCachedIndicatorSourceDistinctKeys(t *testing.T) {
	inner := NewInMemorySource()
	inner.SetIndicator("AAPL", "rsi", day(1), 55)
	inner.SetIndicator("AAPL", "rsi", day(3), 60)
	counting := &countingSource{inner: inner}
	cached := NewCachedIndicatorSource(counting, time.Minute)

	first, _ := cached.GetIndicator(context.Background(), "AAPL", "rsi", day(2), 14)
	second, _ := cached.GetIndicator(context.Background(), "AAPL", "rsi", day(4), 14)

	if first != 55 || second != 60 {
		t.Errorf("different timestamps must not share cache entries: %f %f", first, second)
	}
	if counting.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", counting.calls)
	}
}

func TestCachedIndicatorSourceDoesNotCacheErrors(t *testing.T) {
	inner := NewInMemorySource()
	counting := &countingSource{inner: inner}
	cached := NewCachedIndicatorSource(counting, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := cached.GetIndicator(context.Background(), "AAPL", "rsi", day(2), 14); err == nil {
			t.Fatal("expected an error for a missing indicator")
		}
	}
	// Unavailable values fall through every time; the next bar may have data.
	if counting.calls != 3 {
		t.Errorf("errors must not be cached, got %d upstream calls", counting.calls)
	}
}

func TestCachedIndicatorSourceFlush(t *testing.T) {
	inner := NewInMemorySource()
	inner.SetIndicator("AAPL", "rsi", day(1), 55)
	counting := &countingSource{inner: inner}
	cached := NewCachedIndicatorSource(counting, time.Minute)

	_, _ = cached.GetIndicator(context.Background(), "AAPL", "rsi", day(2), 14)
	cached.Flush()
	_, _ = cached.GetIndicator(context.Background(), "AAPL", "rsi", day(2), 14)

	if counting.calls != 2 {
		t.Errorf("flush should clear cached values, got %d upstream calls", counting.calls)
	}
}
