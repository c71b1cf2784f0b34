package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snowgate_build_info",
			Help: "Build information of the snowgate server",
		},
		[]string{"version", "commit", "date"},
	)

	Executions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowgate_executions_total",
			Help: "Statements handled by the gateway, by risk class and outcome",
		},
		[]string{"risk_class", "outcome"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snowgate_execution_duration_seconds",
			Help:    "Time from receiving a statement to returning its result",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"risk_class"},
	)

	Truncations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowgate_truncated_results_total",
			Help: "Results cut at the row limit",
		},
	)

	SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowgate_sessions_opened_total",
			Help: "Warehouse sessions opened by the pool",
		},
	)

	SessionsInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowgate_sessions_invalidated_total",
			Help: "Warehouse sessions discarded after a fatal error or timeout",
		},
	)

	SessionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snowgate_sessions_in_use",
			Help: "Sessions currently checked out of the pool",
		},
	)

	PoolExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snowgate_pool_exhausted_total",
			Help: "Acquisitions that gave up waiting for a free session",
		},
	)
)

var (
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowgate_tool_calls_total",
			Help: "Tool calls handled, by tool and status",
		},
		[]string{"tool", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snowgate_tool_call_duration_seconds",
			Help:    "Duration of tool calls including rendering",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"tool"},
	)
)
