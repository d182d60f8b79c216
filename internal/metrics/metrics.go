// Package metrics exposes Prometheus collectors for the state store and the
// deadline monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "continuity"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Ticks           prometheus.Counter
	TickErrors      prometheus.Counter
	Escalations     *prometheus.CounterVec
	DeadlineTier    *prometheus.GaugeVec
	RedundantWrites *prometheus.CounterVec
	WriteFailures   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "deadline", Name: "ticks_total",
			Help: "Completed deadline monitor ticks.",
		}),
		TickErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "deadline", Name: "tick_errors_total",
			Help: "Deadline monitor ticks that failed and triggered backoff.",
		}),
		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "deadline", Name: "escalations_total",
			Help: "Emergency escalations written to the current record.",
		}, []string{"deadline"}),
		DeadlineTier: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "deadline", Name: "tier",
			Help: "Current tier per deadline (0 normal, 1 approaching, 2 critical, 3 expired).",
		}, []string{"deadline"}),
		RedundantWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "writes_total",
			Help: "Redundant write rounds by outcome (complete, partial, failed).",
		}, []string{"outcome"}),
		WriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "location_failures_total",
			Help: "Failed writes per storage location.",
		}, []string{"location"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncTick counts a completed tick.
func (m *Metrics) IncTick() {
	if m == nil {
		return
	}
	m.Ticks.Inc()
}

// IncTickError counts a failed tick.
func (m *Metrics) IncTickError() {
	if m == nil {
		return
	}
	m.TickErrors.Inc()
}

// IncEscalation counts an escalation for deadline.
func (m *Metrics) IncEscalation(deadline string) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(deadline).Inc()
}

// SetTier records the latest tier ordinal for deadline.
func (m *Metrics) SetTier(deadline string, ordinal int) {
	if m == nil {
		return
	}
	m.DeadlineTier.WithLabelValues(deadline).Set(float64(ordinal))
}

// ObserveWrite counts one redundant write round and its failed locations.
func (m *Metrics) ObserveWrite(outcome string, failed []string) {
	if m == nil {
		return
	}
	m.RedundantWrites.WithLabelValues(outcome).Inc()
	for _, loc := range failed {
		m.WriteFailures.WithLabelValues(loc).Inc()
	}
}
