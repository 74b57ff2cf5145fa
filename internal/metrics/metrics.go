// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the gateway's counters. All recording methods are safe on
// a nil receiver so components can run uninstrumented in tests.
type Metrics struct {
	AdmissionsTotal          *prometheus.CounterVec
	LedgerVerificationsTotal *prometheus.CounterVec
	ProofCacheHitsTotal      prometheus.Counter
	UpstreamAttemptsTotal    *prometheus.CounterVec
	ResponseCacheHitsTotal   prometheus.Counter
	ResponseCacheMissesTotal prometheus.Counter
}

// New registers the gateway metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AdmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_auditor_admissions_total",
			Help: "Total admission decisions by outcome",
		}, []string{"outcome"}),
		LedgerVerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_auditor_ledger_verifications_total",
			Help: "Total cold-path ledger verifications by result",
		}, []string{"result"}),
		ProofCacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_auditor_proof_cache_hits_total",
			Help: "Total admissions served from the proof cache without a ledger call",
		}),
		UpstreamAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_auditor_upstream_attempts_total",
			Help: "Total upstream fetch attempts by source and outcome",
		}, []string{"source", "outcome"}),
		ResponseCacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_auditor_response_cache_hits_total",
			Help: "Total fetches served from the response cache",
		}),
		ResponseCacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_auditor_response_cache_misses_total",
			Help: "Total fetches that fell through to the failover fetcher",
		}),
	}
}

// IncAdmission records an admission decision outcome (granted, or an error code).
func (m *Metrics) IncAdmission(outcome string) {
	if m == nil {
		return
	}
	m.AdmissionsTotal.WithLabelValues(outcome).Inc()
}

// IncVerification records a cold-path ledger verification result.
func (m *Metrics) IncVerification(result string) {
	if m == nil {
		return
	}
	m.LedgerVerificationsTotal.WithLabelValues(result).Inc()
}

// IncProofCacheHit records a warm-path admission.
func (m *Metrics) IncProofCacheHit() {
	if m == nil {
		return
	}
	m.ProofCacheHitsTotal.Inc()
}

// IncUpstreamAttempt records one attempt against a source.
func (m *Metrics) IncUpstreamAttempt(source, outcome string) {
	if m == nil {
		return
	}
	m.UpstreamAttemptsTotal.WithLabelValues(source, outcome).Inc()
}

// IncResponseCacheHit records a fetch served from the response cache.
func (m *Metrics) IncResponseCacheHit() {
	if m == nil {
		return
	}
	m.ResponseCacheHitsTotal.Inc()
}

// IncResponseCacheMiss records a fetch that missed the response cache.
func (m *Metrics) IncResponseCacheMiss() {
	if m == nil {
		return
	}
	m.ResponseCacheMissesTotal.Inc()
}
