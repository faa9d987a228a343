// Package metrics registers the process-wide Prometheus collectors for the
// compile orchestrator (SPEC_FULL.md §3): job-queue depth, claim latency,
// ingestion duration, and bundle size. One process-wide singleton, alongside
// the database pool and actor client (spec.md §9).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is the number of due PENDING jobs observed at the last
	// stale-lease sweep (queue.WorkerPool).
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "brandbrain",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Number of PENDING jobs in the queue.",
	})

	// ClaimLatency measures the time between a job becoming available and
	// being claimed by a worker.
	ClaimLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "brandbrain",
		Subsystem: "queue",
		Name:      "claim_latency_seconds",
		Help:      "Time between a job's available_at and its claim.",
		Buckets:   prometheus.DefBuckets,
	})

	// IngestionDuration measures the wall-clock time of one IngestSource call.
	IngestionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brandbrain",
		Subsystem: "ingestion",
		Name:      "duration_seconds",
		Help:      "Duration of one source ingestion.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"platform", "capability"})

	// BundleSize records the number of items selected into an EvidenceBundle.
	BundleSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "brandbrain",
		Subsystem: "bundler",
		Name:      "item_count",
		Help:      "Number of NEIs selected into a bundle.",
		Buckets:   []float64{1, 5, 10, 20, 40, 80},
	})
)
