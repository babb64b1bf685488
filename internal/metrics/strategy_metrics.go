// Package metrics defines strategy-evaluation metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Strategy counter vectors
var (
	SignalsGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stratlab",
		Name:      "signals_generated_total",
		Help:      "Total number of entry and exit signals produced during simulation",
	}, []string{"kind"})

	EntriesRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stratlab",
		Name:      "entries_rejected_total",
		Help:      "Total number of entry orders rejected by the risk manager",
	}, []string{"reason"})
)

// RecordSignal records a generated signal.
// kind should be one of: "entry", "exit"
func RecordSignal(kind string) {
	SignalsGeneratedTotal.WithLabelValues(kind).Inc()
}

// RecordEntryRejected records an entry rejection by reason.
func RecordEntryRejected(reason string) {
	EntriesRejectedTotal.WithLabelValues(reason).Inc()
}
