// Package metrics exposes process-wide execution accounting. The counters
// are reporting-only: nothing in the execution path reads them back.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_runs_total",
			Help: "Total number of snippet executions by terminal status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crucible_run_duration_seconds",
			Help:    "Wall-clock execution time of snippets",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crucible_queue_depth",
			Help: "Current number of jobs waiting in the queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crucible_active_workers",
			Help: "Number of workers currently executing a snippet",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crucible_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	ArtifactBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crucible_artifact_bytes",
			Help:    "Size of produced image artifacts",
			Buckets: []float64{1 << 10, 16 << 10, 256 << 10, 1 << 20, 4 << 20},
		},
	)
)
