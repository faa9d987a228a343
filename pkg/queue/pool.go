package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brandbrain/compiler/pkg/metrics"
)

// WorkerPool manages a fleet of homogeneous Workers plus the background
// stale-lease sweep (spec.md §4.6, §5).
type WorkerPool struct {
	podID    string
	store    JobStore
	config   Config
	executor JobExecutor
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	orphansMu        sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// NewWorkerPool constructs a WorkerPool. podID prefixes each worker's
// identifier (spec.md §5: "a unique, stable worker identifier constructed
// at startup").
func NewWorkerPool(podID string, store JobStore, cfg Config, executor JobExecutor) *WorkerPool {
	return &WorkerPool{
		podID:    podID,
		store:    store,
		config:   cfg,
		executor: executor,
		workers:  make([]*Worker, 0, cfg.WorkerCount),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns the worker goroutines and the orphan-sweep goroutine. Safe
// to call only once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate start", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.store, p.config, p.executor)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanSweep(ctx)
	}()
}

// Stop signals every worker to stop after its current job and waits for
// them (spec.md §5: graceful shutdown never interrupts an in-flight job).
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool")
	for _, w := range p.workers {
		w.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

// Health summarizes the pool's current state.
func (p *WorkerPool) Health() PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		stats[i] = w.Health()
		if stats[i].Status == WorkerStatusWorking {
			active++
		}
	}

	p.orphansMu.Lock()
	lastScan := p.lastOrphanScan
	recovered := p.orphansRecovered
	p.orphansMu.Unlock()

	return PoolHealth{
		PodID:            p.podID,
		TotalWorkers:     len(p.workers),
		ActiveWorkers:    active,
		WorkerStats:      stats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}

// runOrphanSweep periodically releases stale leases (spec.md §4.6: "a
// periodic sweep finds status=RUNNING ∧ locked_at < now − threshold").
func (p *WorkerPool) runOrphanSweep(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *WorkerPool) sweepOnce(ctx context.Context) {
	if depth, err := p.store.CountPending(ctx); err != nil {
		slog.Warn("queue depth check failed", "error", err)
	} else {
		metrics.QueueDepth.Set(float64(depth))
	}

	stale, err := p.store.FindStale(ctx, p.config.StaleLockThreshold)
	if err != nil {
		slog.Error("stale-lease sweep: find stale jobs failed", "error", err)
		return
	}

	recovered := 0
	for _, job := range stale {
		slog.Warn("releasing stale job lease",
			"job_id", job.ID, "locked_at", job.LockedAt, "locked_by", job.LockedBy)
		// Known risk (spec.md §4.6): if the original worker is still
		// executing past the stale threshold, this may return the job to
		// PENDING while it is still running, allowing double execution.
		// The heartbeat is the primary mitigation.
		if err := p.store.Fail(ctx, job.ID, p.config.BackoffBase, p.config.BackoffMultiplier,
			"stale lock released after exceeding threshold"); err != nil {
			slog.Error("stale-lease sweep: release failed", "job_id", job.ID, "error", err)
			continue
		}
		recovered++
	}

	p.orphansMu.Lock()
	p.lastOrphanScan = time.Now()
	p.orphansRecovered += recovered
	p.orphansMu.Unlock()

	if recovered > 0 {
		slog.Info("stale-lease sweep recovered jobs", "count", recovered)
	}
}
