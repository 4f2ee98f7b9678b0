package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SignalLatency is the wall time of one ProcessSignal call.
var SignalLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "agentengine",
		Subsystem: "coordinator",
		Name:      "signal_duration_seconds",
		Help:      "Time to process a trading signal across all eligible agents",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"signal_type"},
)

// TradeLatency is the time spent executing and recording one agent trade.
var TradeLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "agentengine",
		Subsystem: "coordinator",
		Name:      "trade_duration_seconds",
		Help:      "Time to execute and record one agent trade",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"signal_type"},
)

// Executions counts per-agent outcomes.
var Executions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentengine",
		Subsystem: "coordinator",
		Name:      "executions_total",
		Help:      "Agent executions by signal type and outcome",
	},
	[]string{"signal_type", "outcome"},
)

var Rejections = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "agentengine",
		Subsystem: "coordinator",
		Name:      "eligibility_rejections_total",
		Help:      "Agents rejected by the eligibility filter",
	},
)

var MetricsUnavailable = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "agentengine",
		Subsystem: "coordinator",
		Name:      "token_metrics_unavailable_total",
		Help:      "Signals processed without token metrics",
	},
)
