// Package metrics exposes Prometheus collectors for gateway calls and panel sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway call outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeServerError    = "server_error"
	OutcomeTransportError = "transport_error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	rejected        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cimut",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Agent gateway calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cimut",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Agent gateway call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cimut",
			Name:      "active_sessions",
			Help:      "Panel sessions currently held in memory.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cimut",
			Name:      "operations_rejected_total",
			Help:      "Operation attempts rejected before reaching the gateway.",
		}, []string{"operation", "reason"}),
	}
	reg.MustRegister(m.gatewayRequests, m.gatewayDuration, m.activeSessions, m.rejected)
	return m
}

// ObserveGatewayCall records one gateway round-trip.
func (m *Metrics) ObserveGatewayCall(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(operation, outcome).Inc()
	m.gatewayDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetActiveSessions sets the session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// IncRejected counts an attempt refused by validation or the in-flight gate.
func (m *Metrics) IncRejected(operation, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(operation, reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
