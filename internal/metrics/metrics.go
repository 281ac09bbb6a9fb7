// Package metrics holds the Prometheus metrics for policy decisions, pacing
// and onboarding.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all custom Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Policy metrics
	Verdicts        *prometheus.CounterVec
	RuleViolations  *prometheus.CounterVec
	AlignmentScore  prometheus.Histogram
	FallbackReplies *prometheus.CounterVec

	// Turn metrics
	PacingStates *prometheus.CounterVec
	TurnLatency  prometheus.Histogram
	LLMErrors    prometheus.Counter

	// Onboarding and connection
	AnswersRecorded prometheus.Counter
	NudgesDelivered prometheus.Counter
	OverrideSyncs   *prometheus.CounterVec
}

// New registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_verdicts_total",
			Help: "Evaluated candidate responses by whether they could be sent",
		}, []string{"can_send"}),

		RuleViolations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_rule_findings_total",
			Help: "Rule and tenet findings by rule ID and tier",
		}, []string{"rule", "tier"}),

		AlignmentScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "attune_alignment_score",
			Help:    "Alignment score of evaluated responses",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		FallbackReplies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_fallback_replies_total",
			Help: "Deterministic fallback replies sent instead of a blocked response",
		}, []string{"reason"}),

		PacingStates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_pacing_states_total",
			Help: "Classified pacing states of user turns",
		}, []string{"state"}),

		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "attune_turn_duration_seconds",
			Help:    "Coach turn latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		LLMErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "attune_llm_errors_total",
			Help: "Failed language model completions",
		}),

		AnswersRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "attune_onboarding_answers_total",
			Help: "Onboarding answers recorded",
		}),

		NudgesDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "attune_connection_nudges_total",
			Help: "Connection nudges delivered to the person",
		}),

		OverrideSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "attune_override_syncs_total",
			Help: "Override sync attempts by result",
		}, []string{"result"}),
	}
}

// ObserveVerdict records one policy decision and its findings.
func (m *Metrics) ObserveVerdict(canSend bool, score int, hard, soft, tenets []string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(strconv.FormatBool(canSend)).Inc()
	m.AlignmentScore.Observe(float64(score))
	for _, id := range hard {
		m.RuleViolations.WithLabelValues(id, "hard").Inc()
	}
	for _, id := range soft {
		m.RuleViolations.WithLabelValues(id, "soft").Inc()
	}
	for _, id := range tenets {
		m.RuleViolations.WithLabelValues(id, "tenet").Inc()
	}
}

// ObserveSync counts one override sync attempt.
func (m *Metrics) ObserveSync(result string) {
	if m == nil {
		return
	}
	m.OverrideSyncs.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
