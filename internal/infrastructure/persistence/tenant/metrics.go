package tenant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records pool activity. A nil *Metrics records nothing.
type Metrics struct {
	dialAttempts prometheus.Counter
	dialFailures prometheus.Counter
	evictions    prometheus.Counter
	liveHandles  prometheus.Gauge
}

// NewMetrics creates the pool metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dialAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "tenant_pool",
			Name:      "dial_attempts_total",
			Help:      "Connection attempts to tenant databases.",
		}),
		dialFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "tenant_pool",
			Name:      "dial_failures_total",
			Help:      "Failed connection attempts to tenant databases.",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "tenant_pool",
			Name:      "evictions_total",
			Help:      "Handles evicted after a connection-level error.",
		}),
		liveHandles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "leasehold",
			Subsystem: "tenant_pool",
			Name:      "live_handles",
			Help:      "Handles currently held by the pool, ready or connecting.",
		}),
	}
}

func (m *Metrics) dialAttempt() {
	if m != nil {
		m.dialAttempts.Inc()
	}
}

func (m *Metrics) dialFailure() {
	if m != nil {
		m.dialFailures.Inc()
	}
}

func (m *Metrics) eviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) setLive(n int) {
	if m != nil {
		m.liveHandles.Set(float64(n))
	}
}
