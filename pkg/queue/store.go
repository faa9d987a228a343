package queue

import (
	"context"
	"time"

	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
)

// JobStore is the narrow dependency on database.JobRepository the queue
// needs: claim, heartbeat, terminal transitions, and the stale-lease sweep.
// It is satisfied directly by *database.JobRepository.
type JobStore interface {
	ClaimNext(ctx context.Context, workerID string) (*models.Job, error)
	ExtendLock(ctx context.Context, jobID uuid.UUID, workerID string) (bool, error)
	Complete(ctx context.Context, jobID uuid.UUID) error
	Fail(ctx context.Context, jobID uuid.UUID, backoffBase time.Duration, backoffMultiplier float64, errMsg string) error
	FindStale(ctx context.Context, threshold time.Duration) ([]database.StaleJob, error)
	CountPending(ctx context.Context) (int, error)
}
