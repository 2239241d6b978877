package metrics

import "github.com/prometheus/client_golang/prometheus"

// Relay outcomes used as label values.
const (
	RelayPublished    = "published"
	RelayRetried      = "retried"
	RelayDeadLettered = "dead_lettered"
)

// RelayMetrics counts what the outbox relay did with each row.
type RelayMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	m := &RelayMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homeserve",
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox rows handled by the relay, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "homeserve",
			Subsystem: "outbox",
			Name:      "batch_size",
			Help:      "Rows claimed per relay batch.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	reg.MustRegister(m.events, m.batches)
	return m
}

func (m *RelayMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *RelayMetrics) ObserveBatch(size int) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Observe(float64(size))
}
