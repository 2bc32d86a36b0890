// Package metrics exposes workflow counters to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	requests        *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	issuance        *prometheus.CounterVec
	recoveries      *prometheus.CounterVec
	approveDuration prometheus.Histogram

	registerOnce sync.Once
}

func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.Register(registry)
	return m
}

// Register is idempotent; a nil registry leaves the metrics unregistered.
func (m *Metrics) Register(registry prometheus.Registerer) {
	if m == nil || registry == nil {
		return
	}
	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.requests = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "foodtrust_certification_requests_total",
			Help: "Certification requests accepted, by type",
		}, []string{"type"})

		m.decisions = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "foodtrust_certification_decisions_total",
			Help: "Certification decisions, by decision and type",
		}, []string{"decision", "type"})

		m.issuance = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "foodtrust_token_issuance_total",
			Help: "Certification token submissions, by outcome",
		}, []string{"outcome"})

		m.recoveries = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "foodtrust_issuance_recoveries_total",
			Help: "Stale issuance attempts resolved on approve, by result",
		}, []string{"result"})

		m.approveDuration = factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "foodtrust_approve_duration_seconds",
			Help:    "Wall time of approve including the ledger round trip",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		})
	})
}

func (m *Metrics) IncRequest(certType string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(certType).Inc()
}

func (m *Metrics) IncDecision(decision, certType string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(decision, certType).Inc()
}

func (m *Metrics) IncIssuance(outcome string) {
	if m == nil || m.issuance == nil {
		return
	}
	m.issuance.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRecovery(result string) {
	if m == nil || m.recoveries == nil {
		return
	}
	m.recoveries.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveApprove(start time.Time) {
	if m == nil || m.approveDuration == nil {
		return
	}
	m.approveDuration.Observe(time.Since(start).Seconds())
}
