package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the Prometheus instruments the pipeline feeds. A nil
// *Metrics is valid: every helper is a no-op, so tests and the offline CLI
// skip registry bookkeeping entirely.
type Metrics struct {
	// Turns counts completed turns by route and serving tier.
	Turns *prometheus.CounterVec

	// StageDuration measures per-stage latency in seconds.
	StageDuration *prometheus.HistogramVec

	// GateDecisions counts tier decisions by tier and reason.
	GateDecisions *prometheus.CounterVec

	// BreakerTrips counts transitions of the remote-tier breaker into open.
	BreakerTrips prometheus.Counter

	// ToolExecutions counts tool invocations by tool and status.
	ToolExecutions *prometheus.CounterVec

	// LLMRequests counts finalize model calls by tier, model and status.
	LLMRequests *prometheus.CounterVec

	// LLMTokens tracks token consumption by tier, model and type.
	LLMTokens *prometheus.CounterVec
}

// NewMetrics registers the bundle with the default Prometheus registry.
// Call once at startup.
func NewMetrics() *Metrics { return NewMetricsWith(prometheus.DefaultRegisterer) }

// NewMetricsWith registers the bundle with reg. Tests pass a fresh registry
// so repeated construction never collides.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnpike_turns_total",
				Help: "Completed turns by route and serving tier",
			},
			[]string{"route", "tier"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnpike_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),

		GateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnpike_gate_decisions_total",
				Help: "Quality gate decisions by tier and reason",
			},
			[]string{"tier", "reason"},
		),

		BreakerTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "turnpike_breaker_trips_total",
				Help: "Times the remote-tier circuit breaker opened",
			},
		),

		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnpike_tool_executions_total",
				Help: "Tool invocations by tool name and status",
			},
			[]string{"tool", "status"},
		),

		LLMRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnpike_llm_requests_total",
				Help: "Model completions by tier, model and status",
			},
			[]string{"tier", "model", "status"},
		),

		LLMTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnpike_llm_tokens_total",
				Help: "Token usage by tier, model and type",
			},
			[]string{"tier", "model", "type"},
		),
	}
}

// TurnFinished counts one completed turn.
func (m *Metrics) TurnFinished(route, tier string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(route, tier).Inc()
}

// ObserveStage records how long one pipeline stage took.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// GateDecided counts one quality-gate decision.
func (m *Metrics) GateDecided(tier, reason string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(tier, reason).Inc()
}

// BreakerTripped counts one breaker transition into open.
func (m *Metrics) BreakerTripped() {
	if m == nil {
		return
	}
	m.BreakerTrips.Inc()
}

// ToolExecuted counts one tool invocation.
func (m *Metrics) ToolExecuted(tool string, ok bool) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(tool, statusLabel(ok)).Inc()
}

// LLMFinished counts one completion call.
func (m *Metrics) LLMFinished(tier, model string, ok bool) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(tier, model, statusLabel(ok)).Inc()
}

// AddLLMTokens records token usage reported by a completion call.
func (m *Metrics) AddLLMTokens(tier, model string, prompt, completion int) {
	if m == nil {
		return
	}
	if prompt > 0 {
		m.LLMTokens.WithLabelValues(tier, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.LLMTokens.WithLabelValues(tier, model, "completion").Add(float64(completion))
	}
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
