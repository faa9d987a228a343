package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
)

// EvidenceBundleRepository persists immutable EvidenceBundle rows.
type EvidenceBundleRepository struct {
	db *sql.DB
}

// NewEvidenceBundleRepository constructs an EvidenceBundleRepository.
func NewEvidenceBundleRepository(db *sql.DB) *EvidenceBundleRepository {
	return &EvidenceBundleRepository{db: db}
}

// Create inserts an immutable bundle. EvidenceBundle rows are never
// updated once written.
func (r *EvidenceBundleRepository) Create(ctx context.Context, b *models.EvidenceBundle) error {
	criteria, err := json.Marshal(b.Criteria)
	if err != nil {
		return fmt.Errorf("encode bundle criteria: %w", err)
	}
	summary, err := json.Marshal(b.Summary)
	if err != nil {
		return fmt.Errorf("encode bundle summary: %w", err)
	}
	itemIDs, err := json.Marshal(b.ItemIDs)
	if err != nil {
		return fmt.Errorf("encode bundle item ids: %w", err)
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	const q = `
		INSERT INTO evidence_bundles (id, tenant_id, criteria, item_ids, summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	if err := r.db.QueryRowContext(ctx, q, b.ID, b.TenantID, criteria, itemIDs, summary).Scan(&b.CreatedAt); err != nil {
		return fmt.Errorf("create evidence bundle: %w", err)
	}
	return nil
}
