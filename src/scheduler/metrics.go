package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var JobRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "agentengine",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by job id and outcome",
	},
	[]string{"job", "outcome"},
)

var JobDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "agentengine",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Wall time of one scheduled job run",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"job"},
)
