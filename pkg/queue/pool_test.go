package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_SweepsStaleJobs(t *testing.T) {
	store := newFakeJobStore()
	store.stale = []database.StaleJob{
		{ID: uuid.New(), LockedAt: time.Now().Add(-time.Hour), LockedBy: "worker-dead-1"},
	}
	exec := &fakeExecutor{}
	cfg := queue.DefaultConfig()
	cfg.WorkerCount = 1
	cfg.PollInterval = 5 * time.Millisecond
	cfg.OrphanSweepInterval = 5 * time.Millisecond

	pool := queue.NewWorkerPool("pod-1", store, cfg, exec)
	pool.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	pool.Stop()

	health := pool.Health()
	assert.GreaterOrEqual(t, health.OrphansRecovered, 1)
	assert.Equal(t, 1, health.TotalWorkers)
}

func TestWorkerPool_HealthReportsWorkerCount(t *testing.T) {
	store := newFakeJobStore()
	exec := &fakeExecutor{}
	cfg := queue.DefaultConfig()
	cfg.WorkerCount = 3
	cfg.PollInterval = 5 * time.Millisecond

	pool := queue.NewWorkerPool("pod-1", store, cfg, exec)
	pool.Start(context.Background())
	health := pool.Health()
	pool.Stop()

	assert.Equal(t, 3, health.TotalWorkers)
	assert.Len(t, health.WorkerStats, 3)
}
