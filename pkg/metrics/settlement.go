package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settlement outcomes used as label values.
const (
	OutcomeSuccess  = "success"
	OutcomeDeclined = "declined"
	OutcomeNoop     = "noop"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
)

// SettlementMetrics tracks payment operations and provider latency.
type SettlementMetrics struct {
	operations      *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	inconsistencies *prometheus.CounterVec
}

// NewSettlementMetrics registers settlement collectors on reg. A nil registerer
// yields a recorder whose methods are no-ops.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_operations_total",
		Help: "Settlement operations by kind and outcome.",
	}, []string{"operation", "outcome"})
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_provider_duration_seconds",
		Help:    "Latency of payment provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "outcome"})
	inconsistencies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_inconsistencies_total",
		Help: "Balance invariant violations detected.",
	}, []string{"source"})
	reg.MustRegister(operations, providerLatency, inconsistencies)
	return &SettlementMetrics{
		operations:      operations,
		providerLatency: providerLatency,
		inconsistencies: inconsistencies,
	}
}

// IncOperation counts one settlement operation.
func (m *SettlementMetrics) IncOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// ObserveProvider records how long a provider call took.
func (m *SettlementMetrics) ObserveProvider(provider, outcome string, duration time.Duration) {
	if m == nil || m.providerLatency == nil {
		return
	}
	m.providerLatency.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncInconsistency counts an invariant violation found by source (settlement, reconcile).
func (m *SettlementMetrics) IncInconsistency(source string) {
	if m == nil || m.inconsistencies == nil {
		return
	}
	m.inconsistencies.WithLabelValues(normalizeLabel(source)).Inc()
}
