package lifecycle

import (
	"time"

	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector records lifecycle transition outcomes.
type MetricsCollector interface {
	RecordTransition(op, result string, duration time.Duration)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordTransition(op, result string, duration time.Duration) {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the lifecycle collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "draftlobby",
			Subsystem: "lifecycle",
			Name:      "transition_duration_seconds",
			Help:      "Time spent in a lifecycle transition, including lock wait.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.transitions, m.duration)
	return m
}

func (m *PrometheusMetrics) RecordTransition(op, result string, duration time.Duration) {
	m.transitions.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
}

const (
	resultOK           = "ok"
	resultRejected     = "rejected"
	resultInvalidState = "invalid_state"
	resultError        = "error"
)

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultOK
	case drafterr.IsInvalidState(err):
		return resultInvalidState
	}
	if _, ok := drafterr.IsRejected(err); ok {
		return resultRejected
	}
	return resultError
}
