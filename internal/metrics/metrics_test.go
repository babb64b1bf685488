package metrics

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistry(t *testing.T) {
	InitRegistry()
	registry := GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
}

func TestRecordJobSubmitted(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordJobSubmitted()
	})
}

func TestRecordJobFinished(t *testing.T) {
	InitRegistry()

	for _, status := range []string{"COMPLETED", "FAILED", "CANCELLED"} {
		assert.NotPanics(t, func() {
			RecordJobFinished(status)
		})
	}
}

func TestRecordFoldCompleted(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordFoldCompleted(0.5)
	})
}

func TestUpdateQueueDepth(t *testing.T) {
	InitRegistry()

	tests := []struct {
		name  string
		depth int
	}{
		{name: "empty queue", depth: 0},
		{name: "shallow queue", depth: 3},
		{name: "deep queue", depth: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				UpdateQueueDepth(tt.depth)
			})
		})
	}
}

func TestRecordEntryRejected(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordEntryRejected("max_positions_exceeded")
	})
}

func TestRecordSignal(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordSignal("entry")
	})
	assert.NotPanics(t, func() {
		RecordSignal("exit")
	})
}

func TestMetricsHandler(t *testing.T) {
	InitRegistry()

	handler := Handler()
	assert.NotNil(t, handler)
	assert.Implements(t, (*http.Handler)(nil), handler)
}

func BenchmarkRecordTradesSimulated(b *testing.B) {
	InitRegistry()

	for i := 0; i < b.N; i++ {
		RecordTradesSimulated(2)
	}
}
