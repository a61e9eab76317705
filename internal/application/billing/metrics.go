package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Invoice outcomes of a monthly run
const (
	outcomeGenerated = "generated"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// JobMetrics records monthly invoice runs. A nil *JobMetrics records nothing.
type JobMetrics struct {
	invoices    *prometheus.CounterVec
	tenantFails prometheus.Counter
	duration    prometheus.Histogram
}

// NewJobMetrics creates the run metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	factory := promauto.With(reg)
	return &JobMetrics{
		invoices: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "billing_run",
			Name:      "invoices_total",
			Help:      "Contracts processed by monthly runs, by outcome.",
		}, []string{"outcome"}),
		tenantFails: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leasehold",
			Subsystem: "billing_run",
			Name:      "tenant_failures_total",
			Help:      "Tenants whose contracts could not be listed during a run.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leasehold",
			Subsystem: "billing_run",
			Name:      "duration_seconds",
			Help:      "Wall time of monthly runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
}

func (m *JobMetrics) invoice(outcome string) {
	if m != nil {
		m.invoices.WithLabelValues(outcome).Inc()
	}
}

func (m *JobMetrics) tenantFailure() {
	if m != nil {
		m.tenantFails.Inc()
	}
}

func (m *JobMetrics) observe(seconds float64) {
	if m != nil {
		m.duration.Observe(seconds)
	}
}
