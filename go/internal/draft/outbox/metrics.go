package outbox

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventName string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordBatchProcessed(count int, duration time.Duration)            {}
func (NoOpMetricsCollector) RecordOutboxLag(lag int)                                           {}
func (NoOpMetricsCollector) RecordPublishAttempt(eventName string, attempt int, success bool) {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	published     *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	batchDuration prometheus.Histogram
	lag           prometheus.Gauge
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "outbox",
			Name:      "events_published_total",
			Help:      "Events published to the backplane by event name.",
		}, []string{"event"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "outbox",
			Name:      "publish_attempts_total",
			Help:      "Publish attempts by attempt number and result.",
		}, []string{"attempt", "result"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "draftlobby",
			Subsystem: "outbox",
			Name:      "drain_duration_seconds",
			Help:      "Time spent draining the outbox.",
			Buckets:   prometheus.DefBuckets,
		}),
		lag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "draftlobby",
			Subsystem: "outbox",
			Name:      "pending_events",
			Help:      "Committed events not yet published.",
		}),
	}
	reg.MustRegister(m.published, m.attempts, m.batchDuration, m.lag)
	return m
}

func (m *PrometheusMetrics) RecordBatchProcessed(count int, duration time.Duration) {
	m.batchDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordOutboxLag(lag int) {
	m.lag.Set(float64(lag))
}

func (m *PrometheusMetrics) RecordPublishAttempt(eventName string, attempt int, success bool) {
	result := "error"
	if success {
		result = "ok"
		m.published.WithLabelValues(eventName).Inc()
	}
	m.attempts.WithLabelValues(strconv.Itoa(attempt), result).Inc()
}
