package triage

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	TriagesTotal       *prometheus.CounterVec
	TriageDuration     *prometheus.HistogramVec
	RelatedMatches     prometheus.Histogram
	RejectedTotal      prometheus.Counter
	FallbacksTotal     *prometheus.CounterVec
	LLMCallsTotal      *prometheus.CounterVec
	LLMDuration        *prometheus.HistogramVec
	LLMTokensIn        prometheus.Counter
	LLMTokensOut       prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_triages_total",
			Help: "Total completed triages by category, severity and known-issue decision.",
		}, []string{"category", "severity", "known_issue"}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sift_triage_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~262s
		}, []string{"provider", "fallback"}),
		RelatedMatches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_triage_related_matches",
			Help:    "Related knowledge base matches returned per triage.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 .. 10
		}),
		RejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_triage_rejected_total",
			Help: "Total triage requests rejected by validation.",
		}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_provider_fallbacks_total",
			Help: "Total assisted provider operations that fell back to rules.",
		}, []string{"operation"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_llm_calls_total",
			Help: "Total LLM backend calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sift_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"operation"}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_notifications_total",
			Help: "Total escalation notifications by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.TriageDuration,
		m.RelatedMatches,
		m.RejectedTotal,
		m.FallbacksTotal,
		m.LLMCallsTotal,
		m.LLMDuration,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.NotificationsTotal,
	)

	return m
}

// Hooks returns Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnLLMCall: func(op string, inputTokens, outputTokens int, duration float64, failed bool) {
			m.LLMCallsTotal.WithLabelValues(op, outcome(failed)).Inc()
			m.LLMDuration.WithLabelValues(op).Observe(duration)
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
		},
		OnFallback: func(op string) {
			m.FallbacksTotal.WithLabelValues(op).Inc()
		},
		OnComplete: func(e *CompleteEvent) {
			m.TriagesTotal.WithLabelValues(string(e.Category), string(e.Severity), strconv.FormatBool(e.KnownIssue)).Inc()
			m.TriageDuration.WithLabelValues(string(e.Provider), strconv.FormatBool(e.Fallback)).Observe(e.Duration)
			m.RelatedMatches.Observe(float64(e.Related))
		},
		OnRejected: func() {
			m.RejectedTotal.Inc()
		},
		OnNotify: func(failed bool) {
			m.NotificationsTotal.WithLabelValues(outcome(failed)).Inc()
		},
	}
}

func outcome(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
