// Package metrics holds the Prometheus collectors shared by the gateway,
// the tool registry and the agent loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for mirrorhub.
type Metrics struct {
	// Confirmation gateway
	ConfirmationsTotal   *prometheus.CounterVec
	ConfirmationWait     *prometheus.HistogramVec
	PendingConfirmations prometheus.Gauge

	// Tool dispatch
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Agent loop
	AgentTurnsTotal   *prometheus.CounterVec
	ModelCallDuration prometheus.Histogram
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConfirmationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirrorhub_confirmations_total",
				Help: "Confirmation records by status transition",
			},
			[]string{"status"}, // pending, confirmed, denied, timeout
		),
		ConfirmationWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirrorhub_confirmation_wait_seconds",
				Help:    "Time a mutating tool call spent waiting for a human decision",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"}, // approved, rejected
		),
		PendingConfirmations: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mirrorhub_pending_confirmations",
				Help: "Confirmation records currently pending",
			},
		),
		ToolCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirrorhub_tool_calls_total",
				Help: "Tool dispatches by tool and result",
			},
			[]string{"tool", "result"}, // ok, error, rejected, unknown, invalid
		),
		ToolCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirrorhub_tool_call_duration_seconds",
				Help:    "Tool dispatch latency including any confirmation wait",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		AgentTurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirrorhub_agent_turns_total",
				Help: "Agent loop turns by outcome",
			},
			[]string{"outcome"}, // done, max_turns, model_fault
		),
		ModelCallDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mirrorhub_model_call_duration_seconds",
				Help:    "Latency of generative model calls",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}
}

// Default is registered on the process-wide Prometheus registry.
var Default = New(prometheus.DefaultRegisterer)
