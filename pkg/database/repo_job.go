package database

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/services"
	"github.com/google/uuid"
)

// JobRepository persists Job rows and implements the lock-free claim
// protocol from spec.md §4.6: no SELECT FOR UPDATE, no advisory locks — a
// single conditional UPDATE elects exactly one winner among racing workers.
type JobRepository struct {
	db *stdsql.DB
}

// NewJobRepository constructs a JobRepository.
func NewJobRepository(db *stdsql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Enqueue inserts a new PENDING job for a compile run.
func (r *JobRepository) Enqueue(ctx context.Context, job *models.Job) error {
	params, err := marshalJSONB(job.Params)
	if err != nil {
		return fmt.Errorf("encode job params: %w", err)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}
	const q = `
		INSERT INTO jobs (id, tenant_id, compile_run_id, job_type, status, max_attempts, params)
		VALUES ($1, $2, $3, $4, 'PENDING', $5, $6)
		RETURNING available_at, created_at`
	err = r.db.QueryRowContext(ctx, q, job.ID, job.TenantID, job.CompileRunID, job.JobType, job.MaxAttempts,
		params).Scan(&job.AvailableAt, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	job.Status = models.JobPending
	return nil
}

// ClaimNext selects one claimable job (status=PENDING, available_at<=now,
// ordered by (available_at, created_at)) and attempts to claim it with a
// conditional UPDATE predicated on id and status=PENDING. It returns
// (nil, nil) when no job is claimable — this is not an error, just an empty
// queue. Exactly one of any number of concurrently racing callers succeeds
// in claiming a given row (spec.md §8, scenario 6).
func (r *JobRepository) ClaimNext(ctx context.Context, workerID string) (*models.Job, error) {
	const selectQ = `
		SELECT id FROM jobs
		WHERE status = 'PENDING' AND available_at <= now()
		ORDER BY available_at ASC, created_at ASC
		LIMIT 1`

	var candidateID uuid.UUID
	err := r.db.QueryRowContext(ctx, selectQ).Scan(&candidateID)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: select candidate: %w", err)
	}

	const claimQ = `
		UPDATE jobs
		SET status = 'RUNNING', locked_at = now(), locked_by = $2, attempts = attempts + 1
		WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, claimQ, candidateID, workerID)
	if err != nil {
		return nil, fmt.Errorf("claim next job: conditional update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim next job: rows affected: %w", err)
	}
	if n == 0 {
		// Another worker won the race between our SELECT and UPDATE.
		return nil, nil
	}

	return r.Get(ctx, candidateID)
}

// Get loads a job by ID.
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	const q = `
		SELECT id, tenant_id, compile_run_id, job_type, status, attempts, max_attempts,
		       locked_at, locked_by, available_at, params, last_error, created_at, finished_at
		FROM jobs WHERE id = $1`
	job := &models.Job{}
	var params []byte
	err := r.db.QueryRowContext(ctx, q, id).Scan(&job.ID, &job.TenantID, &job.CompileRunID, &job.JobType,
		&job.Status, &job.Attempts, &job.MaxAttempts, &job.LockedAt, &job.LockedBy, &job.AvailableAt,
		&params, &job.LastError, &job.CreatedAt, &job.FinishedAt)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.Params, err = unmarshalJSONBMap(params); err != nil {
		return nil, fmt.Errorf("decode job params: %w", err)
	}
	return job, nil
}

// ExtendLock is the heartbeat's extend-lock(job_id, worker_id, now)
// operation (spec.md §4.6): a single conditional UPDATE predicated on
// status=RUNNING AND locked_by=worker_id. Returns true iff the update
// matched — false for wrong owner, wrong status, or a missing job. Never
// returns an error for those cases; only infrastructure failures do.
func (r *JobRepository) ExtendLock(ctx context.Context, jobID uuid.UUID, workerID string) (bool, error) {
	const q = `
		UPDATE jobs SET locked_at = now()
		WHERE id = $1 AND status = 'RUNNING' AND locked_by = $2`
	res, err := r.db.ExecContext(ctx, q, jobID, workerID)
	if err != nil {
		return false, fmt.Errorf("extend lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend lock: %w", err)
	}
	return n == 1, nil
}

// Complete transitions a RUNNING job to SUCCEEDED.
func (r *JobRepository) Complete(ctx context.Context, jobID uuid.UUID) error {
	const q = `UPDATE jobs SET status = 'SUCCEEDED', finished_at = now() WHERE id = $1 AND status = 'RUNNING'`
	res, err := r.db.ExecContext(ctx, q, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.ErrConflict
	}
	return nil
}

// backoffDelay returns BACKOFF_BASE * BACKOFF_MULT^(attempts-1), the delay
// applied when retrying after the attempts-th failure (spec.md §4.6).
func backoffDelay(base time.Duration, multiplier float64, attempts int) time.Duration {
	delay := float64(base)
	for i := 1; i < attempts; i++ {
		delay *= multiplier
	}
	return time.Duration(delay)
}

// Fail records a job failure. If attempts < max_attempts, the job returns to
// PENDING with available_at pushed out by the exponential backoff schedule;
// otherwise it transitions to FAILED with finished_at set. locked_at/
// locked_by are cleared in both cases and last_error is stored. Both UPDATEs
// are predicated on status='RUNNING', mirroring Complete's guard: a job the
// owning worker already completed (e.g. a race between the stale-lease sweep's
// FindStale and its Fail call) is left untouched instead of being reverted.
func (r *JobRepository) Fail(ctx context.Context, jobID uuid.UUID, backoffBase time.Duration, backoffMultiplier float64, errMsg string) error {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Attempts < job.MaxAttempts {
		delay := backoffDelay(backoffBase, backoffMultiplier, job.Attempts)
		const q = `
			UPDATE jobs
			SET status = 'PENDING', available_at = now() + $2::interval, locked_at = NULL,
			    locked_by = NULL, last_error = $3
			WHERE id = $1 AND status = 'RUNNING'`
		res, err := r.db.ExecContext(ctx, q, jobID, fmt.Sprintf("%d seconds", int(delay.Seconds())), errMsg)
		if err != nil {
			return fmt.Errorf("fail job (retry): %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return nil
	}

	const q = `
		UPDATE jobs
		SET status = 'FAILED', locked_at = NULL, locked_by = NULL, last_error = $2, finished_at = now()
		WHERE id = $1 AND status = 'RUNNING'`
	res, err := r.db.ExecContext(ctx, q, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("fail job (terminal): %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	return nil
}

// StaleJob is a RUNNING job whose lease has expired, captured before any
// mutation so callers can log the original owner.
type StaleJob struct {
	ID       uuid.UUID
	LockedAt time.Time
	LockedBy string
}

// CountPending returns the number of jobs currently available to be
// claimed (PENDING and past their available_at), for queue-depth reporting.
func (r *JobRepository) CountPending(ctx context.Context) (int, error) {
	const q = `SELECT count(*) FROM jobs WHERE status = 'PENDING' AND available_at <= now()`
	var n int
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

// FindStale returns RUNNING jobs whose locked_at predates now-threshold.
func (r *JobRepository) FindStale(ctx context.Context, threshold time.Duration) ([]StaleJob, error) {
	const q = `
		SELECT id, locked_at, locked_by FROM jobs
		WHERE status = 'RUNNING' AND locked_at < now() - $1::interval`
	rows, err := r.db.QueryContext(ctx, q, fmt.Sprintf("%d seconds", int(threshold.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("find stale jobs: %w", err)
	}
	defer rows.Close()

	var out []StaleJob
	for rows.Next() {
		var sj StaleJob
		var lockedAt stdsql.NullTime
		var lockedBy stdsql.NullString
		if err := rows.Scan(&sj.ID, &lockedAt, &lockedBy); err != nil {
			return nil, fmt.Errorf("scan stale job: %w", err)
		}
		sj.LockedAt = lockedAt.Time
		sj.LockedBy = lockedBy.String
		out = append(out, sj)
	}
	return out, rows.Err()
}
