// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging for the job lifecycle.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogJobSubmitted logs a job submission event.
func (al *AuditLogger) LogJobSubmitted(jobID string, universeSize, foldMonths int, initialCapital float64, timestamp time.Time) {
	al.WithFields(logrus.Fields{
		"job_id":          jobID,
		"universe_size":   universeSize,
		"training_months": foldMonths,
		"initial_capital": initialCapital,
		"timestamp":       timestamp.Unix(),
	}).Info("Job submission recorded")
}

// LogJobStateChange logs a job status transition.
func (al *AuditLogger) LogJobStateChange(jobID string, oldStatus, newStatus string, foldsCompleted, foldsTotal int) {
	al.WithFields(logrus.Fields{
		"job_id":          jobID,
		"old_status":      oldStatus,
		"new_status":      newStatus,
		"folds_completed": foldsCompleted,
		"folds_total":     foldsTotal,
	}).Info("Job status changed")
}

// LogJobCancellation logs a cancellation request and whether results survive.
func (al *AuditLogger) LogJobCancellation(jobID string, wasRunning, partialResults bool) {
	al.WithFields(logrus.Fields{
		"job_id":          jobID,
		"was_running":     wasRunning,
		"partial_results": partialResults,
	}).Info("Job cancellation recorded")
}

// LogRetentionSweep logs a retention pruning pass.
func (al *AuditLogger) LogRetentionSweep(removed int, cutoff time.Time) {
	al.WithFields(logrus.Fields{
		"jobs_removed": removed,
		"cutoff":       cutoff.Format(time.RFC3339),
	}).Info("Retention sweep completed")
}
