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

// SnapshotRepository persists immutable Snapshot rows.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository constructs a SnapshotRepository.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create inserts a new, immutable snapshot.
func (r *SnapshotRepository) Create(ctx context.Context, s *models.Snapshot) error {
	snapshotJSON, err := json.Marshal(s.SnapshotJSON)
	if err != nil {
		return fmt.Errorf("encode snapshot document: %w", err)
	}
	var diffJSON []byte
	if s.DiffFromPrevious != nil {
		diffJSON, err = json.Marshal(s.DiffFromPrevious)
		if err != nil {
			return fmt.Errorf("encode snapshot diff: %w", err)
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	const q = `
		INSERT INTO snapshots (id, tenant_id, compile_run_id, snapshot_json, diff_from_previous)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err = r.db.QueryRowContext(ctx, q, s.ID, s.TenantID, s.CompileRunID, snapshotJSON, diffJSON).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recently created snapshot for tenant — the one
// with greatest created_at (spec.md §3).
func (r *SnapshotRepository) Latest(ctx context.Context, tenantID uuid.UUID) (*models.Snapshot, error) {
	const q = `
		SELECT id, tenant_id, compile_run_id, snapshot_json, diff_from_previous, created_at
		FROM snapshots WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanOne(ctx, q, tenantID)
}

// ByCompileRun returns the snapshot produced by a given compile run, if any.
func (r *SnapshotRepository) ByCompileRun(ctx context.Context, compileRunID uuid.UUID) (*models.Snapshot, error) {
	const q = `
		SELECT id, tenant_id, compile_run_id, snapshot_json, diff_from_previous, created_at
		FROM snapshots WHERE compile_run_id = $1`
	return r.scanOne(ctx, q, compileRunID)
}

func (r *SnapshotRepository) scanOne(ctx context.Context, q string, arg any) (*models.Snapshot, error) {
	s := &models.Snapshot{}
	var snapshotJSON, diffJSON []byte
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&s.ID, &s.TenantID, &s.CompileRunID, &snapshotJSON, &diffJSON, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if s.SnapshotJSON, err = unmarshalJSONBMap(snapshotJSON); err != nil {
		return nil, fmt.Errorf("decode snapshot document: %w", err)
	}
	if len(diffJSON) > 0 {
		if err := json.Unmarshal(diffJSON, &s.DiffFromPrevious); err != nil {
			return nil, fmt.Errorf("decode snapshot diff: %w", err)
		}
	}
	return s, nil
}
