package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandbrain/compiler/pkg/metrics"
)

// SessionRegistry-equivalent: Worker has no need to register cancel
// functions (spec.md §5: in-progress jobs are not interrupted mid-execution,
// there is no API-triggered cancellation of a running compile), so unlike
// the session worker this pool has no cancel registry.

// Worker polls JobStore for claimable jobs and runs each through a
// JobExecutor while a background heartbeat extends the lease (spec.md
// §4.6, §5).
type Worker struct {
	id       string
	store    JobStore
	config   Config
	executor JobExecutor
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker constructs a Worker identified by id (spec.md §5: "workers are
// homogeneous and identify themselves by a unique, stable worker
// identifier constructed at startup").
func NewWorker(id string, store JobStore, cfg Config, executor JobExecutor) *Worker {
	return &Worker{
		id:           id,
		store:        store,
		config:       cfg,
		executor:     executor,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop after its current job finishes, and
// blocks until it does (spec.md §5: graceful shutdown finishes the
// in-flight job, never interrupts it).
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current state.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("worker started")

	processed := 0
	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
		}

		ok, err := w.pollAndProcess(ctx)
		if err != nil {
			if errors.Is(err, ErrNoJobsAvailable) {
				w.sleep(w.pollInterval())
				continue
			}
			log.Error("error processing job", "error", err)
			w.sleep(time.Second)
			continue
		}
		if !ok {
			w.sleep(w.pollInterval())
			continue
		}

		processed++
		if w.config.Once || (w.config.MaxJobs > 0 && processed >= w.config.MaxJobs) {
			log.Info("worker reached job limit, exiting", "processed", processed)
			return
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims one job and runs it to a terminal outcome. The
// boolean return reports whether a job was claimed at all (false, nil means
// an empty queue without error — callers should sleep and retry).
func (w *Worker) pollAndProcess(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNext(ctx, w.id)
	if err != nil {
		return false, fmt.Errorf("claim next job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log := slog.With("job_id", job.ID, "worker_id", w.id, "compile_run_id", job.CompileRunID)
	log.Info("job claimed", "attempt", job.Attempts)
	metrics.ClaimLatency.Observe(time.Since(job.AvailableAt).Seconds())

	w.setStatus(WorkerStatusWorking, job.ID.String())
	defer w.setStatus(WorkerStatusIdle, "")

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	go w.runHeartbeat(heartbeatCtx, job.ID)

	execErr := w.executor.Execute(ctx, job)
	cancelHeartbeat()

	// Terminal bookkeeping runs on a background context: the job's own
	// context may already be done (timeout, shutdown) by the time we need
	// to record the outcome.
	term := context.Background()
	if execErr != nil {
		log.Error("job failed", "error", execErr)
		if err := w.store.Fail(term, job.ID, w.config.BackoffBase, w.config.BackoffMultiplier, execErr.Error()); err != nil {
			return true, fmt.Errorf("record job failure: %w", err)
		}
	} else {
		if err := w.store.Complete(term, job.ID); err != nil {
			return true, fmt.Errorf("record job completion: %w", err)
		}
		log.Info("job completed")
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	return true, nil
}

// runHeartbeat extends the job's lease at HeartbeatInterval until ctx is
// cancelled (spec.md §4.6: "strictly less than stale_lock_threshold"). A
// failed extension is logged, not fatal — the stale sweep is the backstop.
func (w *Worker) runHeartbeat(ctx context.Context, jobID uuid.UUID) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := w.store.ExtendLock(ctx, jobID, w.id)
			if err != nil {
				slog.Warn("heartbeat extend-lock failed", "job_id", jobID, "error", err)
				continue
			}
			if !ok {
				slog.Warn("heartbeat lost lock ownership", "job_id", jobID, "worker_id", w.id)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter, so racing workers
// don't all wake in lockstep.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	d := base - jitter + offset
	if d < 0 {
		return 0
	}
	return d
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
