// Package observability holds the Prometheus instruments for the enrichment
// and classification paths.
//
// Every method is safe to call on a nil *Metrics, so packages under test can
// run without a registry.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "threatlens"

// Metrics bundles the collectors registered for one process.
type Metrics struct {
	// ProviderAttempts counts single provider calls.
	// Labels: provider, result (success, error)
	ProviderAttempts *prometheus.CounterVec

	// ProviderLatency measures one dispatch, retries included.
	// Labels: provider
	ProviderLatency *prometheus.HistogramVec

	// Outcomes counts recorded enrichment outcomes.
	// Labels: provider, success, error_kind
	Outcomes *prometheus.CounterVec

	// Verdicts counts produced verdicts.
	// Labels: risk_level
	Verdicts *prometheus.CounterVec

	// ReasoningFallbacks counts verdicts that degraded to unknown.
	// Labels: reason (parse, unavailable)
	ReasoningFallbacks *prometheus.CounterVec

	// Jobs counts finished classification jobs.
	// Labels: status (completed, failed)
	Jobs *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "enrichment",
			Name:      "provider_attempts_total",
			Help:      "Provider invocations by result.",
		}, []string{"provider", "result"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "enrichment",
			Name:      "provider_dispatch_seconds",
			Help:      "Wall time of one provider dispatch including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "enrichment",
			Name:      "outcomes_total",
			Help:      "Recorded enrichment outcomes.",
		}, []string{"provider", "success", "error_kind"}),
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "classification",
			Name:      "verdicts_total",
			Help:      "Verdicts by risk level.",
		}, []string{"risk_level"}),
		ReasoningFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "classification",
			Name:      "reasoning_fallbacks_total",
			Help:      "Verdicts that fell back to unknown.",
		}, []string{"reason"}),
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Classification jobs by final status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveAttempt(provider string, ok bool) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "success"
	}
	m.ProviderAttempts.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) ObserveOutcome(provider string, ok bool, errorKind string, took time.Duration) {
	if m == nil {
		return
	}
	success := "false"
	if ok {
		success = "true"
	}
	m.Outcomes.WithLabelValues(provider, success, errorKind).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *Metrics) ObserveVerdict(level string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(level).Inc()
}

func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.ReasoningFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveJob(status string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(status).Inc()
}
