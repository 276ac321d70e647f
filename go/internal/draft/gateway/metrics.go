package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for gateway metrics
type MetricsCollector interface {
	ConnectionOpened()
	ConnectionClosed()
	RecordJoin(success bool)
	RecordPick(result string)
	RecordBroadcast(eventName string, recipients int)
	RecordSlowConsumer()
	RecordRateLimited()
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) ConnectionOpened()                                {}
func (NoOpMetricsCollector) ConnectionClosed()                                {}
func (NoOpMetricsCollector) RecordJoin(success bool)                          {}
func (NoOpMetricsCollector) RecordPick(result string)                         {}
func (NoOpMetricsCollector) RecordBroadcast(eventName string, recipients int) {}
func (NoOpMetricsCollector) RecordSlowConsumer()                              {}
func (NoOpMetricsCollector) RecordRateLimited()                               {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	connections   prometheus.Gauge
	joins         *prometheus.CounterVec
	picks         *prometheus.CounterVec
	broadcasts    *prometheus.CounterVec
	deliveries    prometheus.Counter
	slowConsumers prometheus.Counter
	rateLimited   prometheus.Counter
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "draftlobby",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "gateway",
			Name:      "joins_total",
			Help:      "Lobby join requests by result.",
		}, []string{"result"}),
		picks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "gateway",
			Name:      "picks_total",
			Help:      "Pick requests by result.",
		}, []string{"result"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "gateway",
			Name:      "broadcasts_total",
			Help:      "Events received from the backplane, by event name.",
		}, []string{"event"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "gateway",
			Name:      "deliveries_total",
			Help:      "Event frames handed to local connections.",
		}),
		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "gateway",
			Name:      "slow_consumer_disconnects_total",
			Help:      "Connections closed because their send buffer was full.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "draftlobby",
			Subsystem: "gateway",
			Name:      "rate_limited_frames_total",
			Help:      "Inbound frames dropped by the per-connection rate limit.",
		}),
	}
	reg.MustRegister(m.connections, m.joins, m.picks, m.broadcasts, m.deliveries, m.slowConsumers, m.rateLimited)
	return m
}

func (m *PrometheusMetrics) ConnectionOpened() { m.connections.Inc() }
func (m *PrometheusMetrics) ConnectionClosed() { m.connections.Dec() }

func (m *PrometheusMetrics) RecordJoin(success bool) {
	result := "ok"
	if !success {
		result = "failed"
	}
	m.joins.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) RecordPick(result string) {
	m.picks.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) RecordBroadcast(eventName string, recipients int) {
	m.broadcasts.WithLabelValues(eventName).Inc()
	m.deliveries.Add(float64(recipients))
}

func (m *PrometheusMetrics) RecordSlowConsumer() { m.slowConsumers.Inc() }
func (m *PrometheusMetrics) RecordRateLimited()  { m.rateLimited.Inc() }
