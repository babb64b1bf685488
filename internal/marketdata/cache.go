// Package marketdata: caching wrapper for indicator lookups.
package marketdata

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// CachedIndicatorSource memoizes indicator lookups for one fold. A fresh
// cache is created per fold so a later fold can never observe values cached
// from a subsequent window.
type CachedIndicatorSource struct {
	source    IndicatorSource
	cache     *cache.Cache
	hitCount  uint64
	missCount uint64
}

// NewCachedIndicatorSource wraps an indicator source with a TTL cache
func NewCachedIndicatorSource(source IndicatorSource, ttl time.Duration) *CachedIndicatorSource {
	return &CachedIndicatorSource{
		source: source,
		cache:  cache.New(ttl, ttl*2),
	}
}

// GetIndicator returns the cached value or falls through to the source.
// Unavailable indicators are not cached; the next bar may have the value.
func (c *CachedIndicatorSource) GetIndicator(ctx context.Context, symbol, name string, asOf time.Time, lookback int) (float64, error) {
	key := fmt.Sprintf("%s:%s:%d:%d", symbol, name, asOf.Unix(), lookback)
	if cached, found := c.cache.Get(key); found {
		atomic.AddUint64(&c.hitCount, 1)
		return cached.(float64), nil
	}
	atomic.AddUint64(&c.missCount, 1)

	value, err := c.source.GetIndicator(ctx, symbol, name, asOf, lookback)
	if err != nil {
		return 0, err
	}
	c.cache.SetDefault(key, value)
	return value, nil
}

// Stats returns hit and miss counts
func (c *CachedIndicatorSource) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&c.hitCount), atomic.LoadUint64(&c.missCount)
}

// Flush clears all cached values
func (c *CachedIndicatorSource) Flush() {
	c.cache.Flush()
}
