// Package metrics exposes Prometheus collectors for agent activity.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the agent collectors. A nil *Metrics is a no-op.
type Metrics struct {
	runs           *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	modelLatency   *prometheus.HistogramVec
	tokens         *prometheus.CounterVec
	clarifications *prometheus.CounterVec
	vouchers       *prometheus.CounterVec
	activeRuns     prometheus.Gauge
}

// MustNew registers the collectors with reg, reusing collectors that are
// already registered under the same name.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerclaw",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Agent runs by final loop state.",
		}, []string{"outcome"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerclaw",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and status.",
		}, []string{"tool", "status"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledgerclaw",
			Subsystem: "agent",
			Name:      "model_call_duration_seconds",
			Help:      "Latency of reasoning model calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerclaw",
			Subsystem: "agent",
			Name:      "model_tokens_total",
			Help:      "Tokens reported by the reasoning model.",
		}, []string{"direction"}),
		clarifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerclaw",
			Subsystem: "clarify",
			Name:      "events_total",
			Help:      "Clarification questions opened and answered.",
		}, []string{"event"}),
		vouchers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerclaw",
			Subsystem: "ledger",
			Name:      "voucher_results_total",
			Help:      "Voucher consistency engine results by kind.",
		}, []string{"kind"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledgerclaw",
			Subsystem: "agent",
			Name:      "runs_active",
			Help:      "Runs currently executing.",
		}),
	}
	m.runs = register(reg, m.runs)
	m.toolCalls = register(reg, m.toolCalls)
	m.modelLatency = register(reg, m.modelLatency)
	m.tokens = register(reg, m.tokens)
	m.clarifications = register(reg, m.clarifications)
	m.vouchers = register(reg, m.vouchers)
	m.activeRuns = register(reg, m.activeRuns)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RunFinished counts a finished run.
func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// RunStarted bumps the active gauge; the returned func lowers it.
func (m *Metrics) RunStarted() func() {
	if m == nil {
		return func() {}
	}
	m.activeRuns.Inc()
	return m.activeRuns.Dec
}

// ToolCall counts a tool execution.
func (m *Metrics) ToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// ModelCall observes a model call.
func (m *Metrics) ModelCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.modelLatency.WithLabelValues(status).Observe(d.Seconds())
}

// Tokens adds the usage of one model call.
func (m *Metrics) Tokens(input, output int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues("input").Add(float64(input))
	m.tokens.WithLabelValues("output").Add(float64(output))
}

// Clarification counts "opened", "answered" or "ignored".
func (m *Metrics) Clarification(event string) {
	if m == nil {
		return
	}
	m.clarifications.WithLabelValues(event).Inc()
}

// Voucher counts a consistency engine result kind.
func (m *Metrics) Voucher(kind string) {
	if m == nil {
		return
	}
	m.vouchers.WithLabelValues(kind).Inc()
}
