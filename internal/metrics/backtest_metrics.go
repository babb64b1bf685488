// Package metrics defines job-lifecycle metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Job counter vectors
var (
	JobsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stratlab",
		Name:      "jobs_finished_total",
		Help:      "Total number of jobs reaching a terminal status",
	}, []string{"status"})
)

// RecordJobFinished records a job reaching a terminal status.
// status should be one of: "COMPLETED", "FAILED", "CANCELLED"
func RecordJobFinished(status string) {
	JobsFinishedTotal.WithLabelValues(status).Inc()
}
