package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for scanner metrics
type MetricsCollector interface {
	RecordScan(expiredTurns, dueStarts int, duration time.Duration)
	RecordJob(kind, result string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordScan(expiredTurns, dueStarts int, duration time.Duration) {}
func (NoOpMetricsCollector) RecordJob(kind, result string)                               {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	scans        prometheus.Counter
	scanDuration prometheus.Histogram
	due          *prometheus.CounterVec
	jobs         *prometheus.CounterVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "Completed scans.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "draftlobby",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Time spent querying for due leagues.",
			Buckets:   prometheus.DefBuckets,
		}),
		due: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "scanner",
			Name:      "due_leagues_total",
			Help:      "Leagues found due, by job kind.",
		}, []string{"kind"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "scanner",
			Name:      "jobs_total",
			Help:      "Processed jobs by kind and result.",
		}, []string{"kind", "result"}),
	}
	reg.MustRegister(m.scans, m.scanDuration, m.due, m.jobs)
	return m
}

func (m *PrometheusMetrics) RecordScan(expiredTurns, dueStarts int, duration time.Duration) {
	m.scans.Inc()
	m.scanDuration.Observe(duration.Seconds())
	m.due.WithLabelValues(string(jobEndTurn)).Add(float64(expiredTurns))
	m.due.WithLabelValues(string(jobStartDraft)).Add(float64(dueStarts))
}

func (m *PrometheusMetrics) RecordJob(kind, result string) {
	m.jobs.WithLabelValues(kind, result).Inc()
}
