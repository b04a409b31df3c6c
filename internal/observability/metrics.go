package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes recorded for realtime sends.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
)

// Escalation rule outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	connections prometheus.Gauge
	deliveries  *prometheus.CounterVec
	breaches    *prometheus.CounterVec
	escalations *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "servicedesk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "servicedesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "servicedesk",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP errors by route, method and error code.",
		}, []string{"route", "method", "code"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "servicedesk",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Currently registered live connections.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "servicedesk",
			Subsystem: "realtime",
			Name:      "deliveries_total",
			Help:      "Outbound envelopes by event and outcome.",
		}, []string{"event", "outcome"}),
		breaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "servicedesk",
			Subsystem: "sla",
			Name:      "breaches_total",
			Help:      "Detected SLA breaches by condition.",
		}, []string{"condition"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "servicedesk",
			Subsystem: "sla",
			Name:      "escalation_actions_total",
			Help:      "Escalation rule executions by action and outcome.",
		}, []string{"action", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency, m.errors, m.connections, m.deliveries, m.breaches, m.escalations)
	}
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// SetConnections reports the live connection count.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

// RecordDelivery counts one outbound envelope.
func (m *Metrics) RecordDelivery(event string, delivered bool) {
	if m == nil {
		return
	}
	outcome := OutcomeDropped
	if delivered {
		outcome = OutcomeDelivered
	}
	m.deliveries.WithLabelValues(event, outcome).Inc()
}

// RecordBreach counts a false-to-true breach transition.
func (m *Metrics) RecordBreach(condition string) {
	if m == nil {
		return
	}
	m.breaches.WithLabelValues(condition).Inc()
}

// RecordEscalation counts one escalation rule execution.
func (m *Metrics) RecordEscalation(action, outcome string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(action, outcome).Inc()
}
