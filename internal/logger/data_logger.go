// Package logger provides market-data-specific logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// DataLogger provides dedicated logging for market data operations.
type DataLogger struct {
	*logrus.Entry
}

// NewDataLogger creates a new market data logger.
func NewDataLogger(baseLogger *logrus.Logger) *DataLogger {
	return &DataLogger{
		Entry: baseLogger.WithField("component", "marketdata"),
	}
}

// LogBarFetch logs a completed bar history request.
func (dl *DataLogger) LogBarFetch(symbol string, barCount int, cacheHit bool, latencyMs float64) {
	dl.WithFields(logrus.Fields{
		"symbol":     symbol,
		"bar_count":  barCount,
		"cache_hit":  cacheHit,
		"latency_ms": latencyMs,
	}).Debug("Bar history fetched")
}

// LogIndicatorCacheStats logs per-fold indicator cache effectiveness.
func (dl *DataLogger) LogIndicatorCacheStats(foldIndex int, hits, misses uint64) {
	dl.WithFields(logrus.Fields{
		"fold_index": foldIndex,
		"hits":       hits,
		"misses":     misses,
	}).Debug("Indicator cache statistics")
}

// LogCoverageGap logs a symbol failing universe validation.
func (dl *DataLogger) LogCoverageGap(symbol string, coverage, required float64) {
	dl.WithFields(logrus.Fields{
		"symbol":   symbol,
		"coverage": coverage,
		"required": required,
	}).Warn("Symbol coverage below requirement")
}

// LogVendorError logs a market data vendor failure.
func (dl *DataLogger) LogVendorError(symbol, endpoint, errorReason string) {
	dl.WithFields(logrus.Fields{
		"symbol":       symbol,
		"endpoint":     endpoint,
		"error_reason": errorReason,
	}).Error("Market data request failed")
}
