package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
)

// OverridesRepository persists the one-per-tenant Overrides document.
type OverridesRepository struct {
	db *sql.DB
}

// NewOverridesRepository constructs an OverridesRepository.
func NewOverridesRepository(db *sql.DB) *OverridesRepository {
	return &OverridesRepository{db: db}
}

// Get returns the overrides document for tenantID, or an empty document
// (never services.ErrNotFound — spec.md §6: "returns empty document when
// none exist").
func (r *OverridesRepository) Get(ctx context.Context, tenantID uuid.UUID) (*models.Overrides, error) {
	const q = `SELECT tenant_id, overrides, pinned_paths, updated_at FROM overrides WHERE tenant_id = $1`
	o := &models.Overrides{}
	var overridesRaw, pinnedRaw []byte
	err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&o.TenantID, &overridesRaw, &pinnedRaw, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Overrides{TenantID: tenantID, OverridesDoc: map[string]any{}, PinnedPaths: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get overrides: %w", err)
	}
	o.OverridesDoc, err = unmarshalJSONBMap(overridesRaw)
	if err != nil {
		return nil, fmt.Errorf("decode overrides document: %w", err)
	}
	if len(pinnedRaw) > 0 {
		if err := json.Unmarshal(pinnedRaw, &o.PinnedPaths); err != nil {
			return nil, fmt.Errorf("decode pinned paths: %w", err)
		}
	}
	return o, nil
}

// Merge applies a PATCH: patch is merged key-by-key into the existing
// overrides document (a JSON-null value deletes the key; a missing key is
// left untouched), and pinnedPaths — if non-nil — wholesale replaces the
// stored set. This is an idempotent function of its last write (spec.md §8).
func (r *OverridesRepository) Merge(ctx context.Context, tenantID uuid.UUID, patch map[string]any, pinnedPaths []string) (*models.Overrides, error) {
	current, err := r.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(current.OverridesDoc)+len(patch))
	for k, v := range current.OverridesDoc {
		merged[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	newPinned := current.PinnedPaths
	if pinnedPaths != nil {
		newPinned = pinnedPaths
	}

	overridesJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode overrides document: %w", err)
	}
	pinnedJSON, err := json.Marshal(newPinned)
	if err != nil {
		return nil, fmt.Errorf("encode pinned paths: %w", err)
	}

	const q = `
		INSERT INTO overrides (tenant_id, overrides, pinned_paths, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id) DO UPDATE
		SET overrides = EXCLUDED.overrides, pinned_paths = EXCLUDED.pinned_paths, updated_at = now()
		RETURNING updated_at`
	out := &models.Overrides{TenantID: tenantID, OverridesDoc: merged, PinnedPaths: newPinned}
	if err := r.db.QueryRowContext(ctx, q, tenantID, overridesJSON, pinnedJSON).Scan(&out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("merge overrides: %w", err)
	}
	return out, nil
}
