package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

// Metrics implements subsync.Metrics using Prometheus.
type Metrics struct {
	applyTotal                 *prometheus.CounterVec
	applyDuration              *prometheus.HistogramVec
	circuitBreakerStateChanges *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		applyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_updates_total",
			Help:      "Total number of entitlement updates by lookup kind and outcome.",
		}, []string{"lookup", "outcome"}),

		applyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entitlement_update_duration_seconds",
			Help:      "Latency of user store entitlement updates.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"lookup"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),
	}
}

// DefaultMetrics registers metrics on the default Prometheus registry
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

func (m *Metrics) RecordApply(lookup subsync.LookupKind, outcome string) {
	m.applyTotal.WithLabelValues(string(lookup), outcome).Inc()
}

func (m *Metrics) RecordApplyDuration(lookup subsync.LookupKind, duration time.Duration) {
	m.applyDuration.WithLabelValues(string(lookup)).Observe(duration.Seconds())
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}
