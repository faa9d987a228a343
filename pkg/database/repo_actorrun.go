package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/services"
	"github.com/google/uuid"
)

// ActorRunRepository persists ActorRun rows.
type ActorRunRepository struct {
	db *sql.DB
}

// NewActorRunRepository constructs an ActorRunRepository.
func NewActorRunRepository(db *sql.DB) *ActorRunRepository {
	return &ActorRunRepository{db: db}
}

// Create inserts a new RUNNING actor run.
func (r *ActorRunRepository) Create(ctx context.Context, run *models.ActorRun) error {
	input, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("encode actor run input: %w", err)
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	const q = `
		INSERT INTO actor_runs
			(id, tenant_id, source_connection_id, actor_id, input, external_run_id,
			 external_dataset_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING started_at`
	err = r.db.QueryRowContext(ctx, q, run.ID, run.TenantID, run.SourceConnectionID, run.ActorID, input,
		run.ExternalRunID, run.ExternalDatasetID, run.Status).Scan(&run.StartedAt)
	if err != nil {
		return fmt.Errorf("create actor run: %w", err)
	}
	return nil
}

// FinishTerminal transitions an actor run to a terminal status, recording an
// error summary (empty on success) and the finish time. The raw-item count is
// recorded separately by SetRawItemCount.
func (r *ActorRunRepository) FinishTerminal(ctx context.Context, id uuid.UUID, status models.ActorRunStatus, errorSummary string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("FinishTerminal: status %q is not terminal", status)
	}
	const q = `
		UPDATE actor_runs SET status = $2, error_summary = $3, finished_at = now()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, status, errorSummary)
	if err != nil {
		return fmt.Errorf("finish actor run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish actor run: %w", err)
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

// SetRawItemCount records how many raw items were stored for this run.
func (r *ActorRunRepository) SetRawItemCount(ctx context.Context, id uuid.UUID, count int) error {
	const q = `UPDATE actor_runs SET raw_item_count = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, count)
	if err != nil {
		return fmt.Errorf("set actor run raw item count: %w", err)
	}
	return nil
}

// LatestSucceeded returns the most recent SUCCEEDED run for a source
// connection, or services.ErrNotFound if none exists — the freshness check's
// (C1) primary read.
func (r *ActorRunRepository) LatestSucceeded(ctx context.Context, sourceConnectionID uuid.UUID) (*models.ActorRun, error) {
	const q = `
		SELECT id, tenant_id, source_connection_id, actor_id, input, external_run_id,
		       external_dataset_id, status, started_at, finished_at, error_summary, raw_item_count
		FROM actor_runs
		WHERE source_connection_id = $1 AND status = 'SUCCEEDED'
		ORDER BY finished_at DESC
		LIMIT 1`
	return r.scanOne(ctx, q, sourceConnectionID)
}

// Get loads a single actor run by ID.
func (r *ActorRunRepository) Get(ctx context.Context, id uuid.UUID) (*models.ActorRun, error) {
	const q = `
		SELECT id, tenant_id, source_connection_id, actor_id, input, external_run_id,
		       external_dataset_id, status, started_at, finished_at, error_summary, raw_item_count
		FROM actor_runs WHERE id = $1`
	return r.scanOne(ctx, q, id)
}

func (r *ActorRunRepository) scanOne(ctx context.Context, q string, arg any) (*models.ActorRun, error) {
	run := &models.ActorRun{}
	var input []byte
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&run.ID, &run.TenantID, &run.SourceConnectionID, &run.ActorID,
		&input, &run.ExternalRunID, &run.ExternalDatasetID, &run.Status, &run.StartedAt, &run.FinishedAt,
		&run.ErrorSummary, &run.RawItemCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan actor run: %w", err)
	}
	run.Input, err = unmarshalJSONBMap(input)
	if err != nil {
		return nil, fmt.Errorf("decode actor run input: %w", err)
	}
	return run, nil
}
