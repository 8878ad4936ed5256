package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "subledger",
			Name:      "job_runs_total",
			Help:      "Background job iterations by outcome.",
		},
		[]string{"job", "result"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "subledger",
			Name:      "job_duration_seconds",
			Help:      "Background job iteration duration.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	jobConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "subledger",
			Name:      "job_consecutive_failures",
			Help:      "Consecutive failed iterations per job.",
		},
		[]string{"job"},
	)
)
