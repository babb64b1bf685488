// Package logger provides simulation-specific logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// SimulationLogger provides dedicated logging for fold simulation events.
type SimulationLogger struct {
	*logrus.Entry
}

// NewSimulationLogger creates a new simulation logger.
func NewSimulationLogger(baseLogger *logrus.Logger) *SimulationLogger {
	return &SimulationLogger{
		Entry: baseLogger.WithField("component", "simulation"),
	}
}

// LogFoldStart logs the start of a fold simulation.
func (sl *SimulationLogger) LogFoldStart(jobID string, foldIndex int, validationStart, validationEnd string, universeSize int) {
	sl.WithFields(logrus.Fields{
		"job_id":           jobID,
		"fold_index":       foldIndex,
		"validation_start": validationStart,
		"validation_end":   validationEnd,
		"universe_size":    universeSize,
	}).Info("Fold simulation started")
}

// LogFoldComplete logs a completed fold with its outcome.
func (sl *SimulationLogger) LogFoldComplete(jobID string, foldIndex, trades int, foldReturn float64, degenerate bool, durationMs float64) {
	sl.WithFields(logrus.Fields{
		"job_id":      jobID,
		"fold_index":  foldIndex,
		"trades":      trades,
		"fold_return": foldReturn,
		"degenerate":  degenerate,
		"duration_ms": durationMs,
	}).Info("Fold simulation completed")
}

// LogDrawdownTrip logs a drawdown limit breach.
func (sl *SimulationLogger) LogDrawdownTrip(jobID string, foldIndex int, drawdownPct, limitPct float64, positionsClosed int) {
	sl.WithFields(logrus.Fields{
		"job_id":           jobID,
		"fold_index":       foldIndex,
		"drawdown_pct":     drawdownPct,
		"limit_pct":        limitPct,
		"positions_closed": positionsClosed,
	}).Warn("Drawdown limit breached")
}

// LogEntryRejected logs a rejected entry order.
func (sl *SimulationLogger) LogEntryRejected(jobID, symbol, reason string) {
	sl.WithFields(logrus.Fields{
		"job_id": jobID,
		"symbol": symbol,
		"reason": reason,
	}).Debug("Entry order rejected")
}

// LogDegenerateFold logs a fold that could not finish cleanly.
func (sl *SimulationLogger) LogDegenerateFold(jobID string, foldIndex int, warnings []string) {
	sl.WithFields(logrus.Fields{
		"job_id":     jobID,
		"fold_index": foldIndex,
		"warnings":   warnings,
	}).Warn("Fold ended degenerate")
}
