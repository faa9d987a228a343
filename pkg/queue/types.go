// Package queue implements the durable job queue (spec.md §4.6): optimistic
// lease-based claiming, a heartbeat that extends the lease while a job runs,
// and a periodic sweep that releases stale leases back to PENDING.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/brandbrain/compiler/pkg/models"
)

// ErrNoJobsAvailable indicates the queue had no claimable job at poll time.
var ErrNoJobsAvailable = errors.New("no jobs available")

// JobExecutor runs the worker body for one claimed job (spec.md §4.3's
// "worker body": iterate sources, ingest/normalize, bundle, write a
// snapshot). The queue package only owns claiming, heartbeat, and terminal
// bookkeeping; it never interprets job params itself.
type JobExecutor interface {
	Execute(ctx context.Context, job *models.Job) error
}

// Config holds the worker pool's tunables (spec.md §6 env vars, §4.6).
type Config struct {
	WorkerCount         int
	PollInterval        time.Duration
	PollIntervalJitter  time.Duration
	HeartbeatInterval   time.Duration
	StaleLockThreshold  time.Duration
	BackoffBase         time.Duration
	BackoffMultiplier   float64
	OrphanSweepInterval time.Duration
	MaxJobs             int  // 0 = unbounded; --max-jobs
	Once                bool // --once: process a single job then exit
}

// DefaultConfig matches spec.md §6's documented env-var defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:         1,
		PollInterval:        2 * time.Second,
		PollIntervalJitter:  500 * time.Millisecond,
		HeartbeatInterval:   30 * time.Second,
		StaleLockThreshold:  10 * time.Minute,
		BackoffBase:         30 * time.Second,
		BackoffMultiplier:   2,
		OrphanSweepInterval: time.Minute,
	}
}

// WorkerStatus is a worker's current activity state.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth reports a single worker's state.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  string       `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// PoolHealth reports the whole pool's state.
type PoolHealth struct {
	PodID            string         `json:"pod_id"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveWorkers    int            `json:"active_workers"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}
