// Package metrics provides the centralized Prometheus registry for the
// backtesting service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	JobsSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stratlab",
		Name:      "jobs_submitted_total",
		Help:      "Total number of backtest jobs accepted for execution",
	})
	JobsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stratlab",
		Name:      "jobs_rejected_total",
		Help:      "Total number of job submissions rejected at validation",
	})
	TradesSimulatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stratlab",
		Name:      "trades_simulated_total",
		Help:      "Total number of simulated fills across all jobs",
	})
	FoldsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stratlab",
		Name:      "folds_completed_total",
		Help:      "Total number of walk-forward folds simulated to completion",
	})
)

// Gauge metrics
var (
	JobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stratlab",
		Name:      "jobs_running",
		Help:      "Number of jobs currently executing",
	})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stratlab",
		Name:      "queue_depth",
		Help:      "Number of jobs waiting for a worker",
	})
)

// Histogram metrics
var (
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stratlab",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock duration of backtest jobs in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800},
	})
	FoldDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stratlab",
		Name:      "fold_duration_seconds",
		Help:      "Duration of individual fold simulations in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(JobsSubmittedTotal)
		registry.MustRegister(JobsRejectedTotal)
		registry.MustRegister(TradesSimulatedTotal)
		registry.MustRegister(FoldsCompletedTotal)

		registry.MustRegister(JobsRunning)
		registry.MustRegister(QueueDepth)

		registry.MustRegister(JobDuration)
		registry.MustRegister(FoldDuration)

		registry.MustRegister(JobsFinishedTotal)
		registry.MustRegister(EntriesRejectedTotal)
		registry.MustRegister(SignalsGeneratedTotal)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordJobSubmitted records an accepted job submission.
func RecordJobSubmitted() {
	JobsSubmittedTotal.Inc()
}

// RecordJobRejected records a submission rejected at validation.
func RecordJobRejected() {
	JobsRejectedTotal.Inc()
}

// RecordTradesSimulated adds a batch of simulated fills.
func RecordTradesSimulated(count int) {
	TradesSimulatedTotal.Add(float64(count))
}

// RecordFoldCompleted records one finished fold and its duration.
func RecordFoldCompleted(durationSeconds float64) {
	FoldsCompletedTotal.Inc()
	FoldDuration.Observe(durationSeconds)
}

// RecordJobDuration records job wall-clock duration.
func RecordJobDuration(durationSeconds float64) {
	JobDuration.Observe(durationSeconds)
}

// UpdateQueueDepth updates the waiting-job gauge.
func UpdateQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}
