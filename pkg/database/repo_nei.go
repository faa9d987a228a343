package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
)

// NEIRepository persists NormalizedEvidenceItem rows and implements the
// dedupe-key upsert from spec.md §4.4.
type NEIRepository struct {
	db *sql.DB
}

// NewNEIRepository constructs an NEIRepository.
func NewNEIRepository(db *sql.DB) *NEIRepository {
	return &NEIRepository{db: db}
}

// UpsertResult reports whether the upsert created a new row or updated an
// existing one, for the ingestion result counters in spec.md §4.3.
type UpsertResult struct {
	Created bool
}

// Upsert inserts or merges item by its dedupe key (spec.md §3): non-web
// items key on (tenant, platform, content_type, external_id); web items key
// on (tenant, platform, content_type, canonical_url). On update, the new
// raw-ref is merged in if absent, mutable fields are overwritten, and the
// creation timestamp is preserved.
func (r *NEIRepository) Upsert(ctx context.Context, item *models.NormalizedEvidenceItem) (UpsertResult, error) {
	if item.Platform != models.PlatformWeb && (item.ExternalID == nil || *item.ExternalID == "") {
		return UpsertResult{}, fmt.Errorf("upsert NEI: non-web item requires a non-empty external_id")
	}

	existing, err := r.findByKey(ctx, item)
	if err != nil {
		return UpsertResult{}, err
	}

	metrics, err := json.Marshal(item.Metrics)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert NEI: encode metrics: %w", err)
	}
	flags, err := json.Marshal(item.Flags)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert NEI: encode flags: %w", err)
	}

	if existing == nil {
		item.ID = uuid.New()
		item.RawRefs = dedupeRawRefs(nil, item.RawRefs)
		rawRefs, err := json.Marshal(item.RawRefs)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("upsert NEI: encode raw_refs: %w", err)
		}
		const insertQ = `
			INSERT INTO normalized_evidence_items
				(id, tenant_id, platform, content_type, external_id, canonical_url,
				 published_at, metrics, text, flags, raw_refs)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at`
		err = r.db.QueryRowContext(ctx, insertQ, item.ID, item.TenantID, item.Platform, item.ContentType,
			item.ExternalID, item.CanonicalURL, item.PublishedAt, metrics, item.Text, flags, rawRefs,
		).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("upsert NEI: insert: %w", err)
		}
		return UpsertResult{Created: true}, nil
	}

	item.ID = existing.ID
	item.CreatedAt = existing.CreatedAt
	item.RawRefs = dedupeRawRefs(existing.RawRefs, item.RawRefs)
	rawRefs, err := json.Marshal(item.RawRefs)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert NEI: encode raw_refs: %w", err)
	}
	const updateQ = `
		UPDATE normalized_evidence_items
		SET canonical_url = $2, published_at = $3, metrics = $4, text = $5, flags = $6,
		    raw_refs = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`
	if err := r.db.QueryRowContext(ctx, updateQ, item.ID, item.CanonicalURL, item.PublishedAt, metrics,
		item.Text, flags, rawRefs).Scan(&item.UpdatedAt); err != nil {
		return UpsertResult{}, fmt.Errorf("upsert NEI: update: %w", err)
	}
	return UpsertResult{Created: false}, nil
}

func (r *NEIRepository) findByKey(ctx context.Context, item *models.NormalizedEvidenceItem) (*models.NormalizedEvidenceItem, error) {
	var q string
	var args []any
	if item.Platform == models.PlatformWeb {
		q = `
			SELECT id, tenant_id, platform, content_type, external_id, canonical_url,
			       published_at, metrics, text, flags, raw_refs, created_at, updated_at
			FROM normalized_evidence_items
			WHERE tenant_id = $1 AND platform = $2 AND content_type = $3 AND canonical_url = $4`
		args = []any{item.TenantID, item.Platform, item.ContentType, item.CanonicalURL}
	} else {
		q = `
			SELECT id, tenant_id, platform, content_type, external_id, canonical_url,
			       published_at, metrics, text, flags, raw_refs, created_at, updated_at
			FROM normalized_evidence_items
			WHERE tenant_id = $1 AND platform = $2 AND content_type = $3 AND external_id = $4`
		args = []any{item.TenantID, item.Platform, item.ContentType, *item.ExternalID}
	}

	row := r.db.QueryRowContext(ctx, q, args...)
	found := &models.NormalizedEvidenceItem{}
	var metrics, flags, rawRefs []byte
	err := row.Scan(&found.ID, &found.TenantID, &found.Platform, &found.ContentType, &found.ExternalID,
		&found.CanonicalURL, &found.PublishedAt, &metrics, &found.Text, &flags, &rawRefs,
		&found.CreatedAt, &found.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find NEI by key: %w", err)
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &found.Metrics); err != nil {
			return nil, fmt.Errorf("decode NEI metrics: %w", err)
		}
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &found.Flags); err != nil {
			return nil, fmt.Errorf("decode NEI flags: %w", err)
		}
	}
	if len(rawRefs) > 0 {
		if err := json.Unmarshal(rawRefs, &found.RawRefs); err != nil {
			return nil, fmt.Errorf("decode NEI raw_refs: %w", err)
		}
	}
	return found, nil
}

// dedupeRawRefs appends incoming refs onto existing, skipping any that are
// already present (spec.md §4.4: "merge the new ref into raw-refs if not
// present").
func dedupeRawRefs(existing, incoming []models.RawRef) []models.RawRef {
	out := append([]models.RawRef{}, existing...)
	for _, ref := range incoming {
		present := false
		for _, e := range existing {
			if e == ref {
				present = true
				break
			}
		}
		if !present {
			out = append(out, ref)
		}
	}
	return out
}

// ListCandidates returns NEIs for tenant restricted to the given platform
// and content type, bounded to a small multiple of the scoring window so the
// bundler (C5) never loads a pathologically large source into memory,
// preordered by a SQL proxy for engagement (published_at desc, then
// canonical_url for determinism).
func (r *NEIRepository) ListCandidates(ctx context.Context, tenantID uuid.UUID, platform models.Platform, contentType string, limit int) ([]*models.NormalizedEvidenceItem, error) {
	const q = `
		SELECT id, tenant_id, platform, content_type, external_id, canonical_url,
		       published_at, metrics, text, flags, raw_refs, created_at, updated_at
		FROM normalized_evidence_items
		WHERE tenant_id = $1 AND platform = $2 AND content_type = $3
		ORDER BY published_at DESC NULLS LAST, canonical_url ASC
		LIMIT $4`
	rows, err := r.db.QueryContext(ctx, q, tenantID, platform, contentType, limit)
	if err != nil {
		return nil, fmt.Errorf("list NEI candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.NormalizedEvidenceItem
	for rows.Next() {
		item := &models.NormalizedEvidenceItem{}
		var metrics, flags, rawRefs []byte
		if err := rows.Scan(&item.ID, &item.TenantID, &item.Platform, &item.ContentType, &item.ExternalID,
			&item.CanonicalURL, &item.PublishedAt, &metrics, &item.Text, &flags, &rawRefs,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan NEI candidate: %w", err)
		}
		if len(metrics) > 0 {
			if err := json.Unmarshal(metrics, &item.Metrics); err != nil {
				return nil, fmt.Errorf("decode NEI metrics: %w", err)
			}
		}
		if len(flags) > 0 {
			if err := json.Unmarshal(flags, &item.Flags); err != nil {
				return nil, fmt.Errorf("decode NEI flags: %w", err)
			}
		}
		if len(rawRefs) > 0 {
			if err := json.Unmarshal(rawRefs, &item.RawRefs); err != nil {
				return nil, fmt.Errorf("decode NEI raw_refs: %w", err)
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DistinctPlatformContentTypes returns the distinct (platform, content_type)
// pairs present among a tenant's NEIs restricted to enabled platforms —
// the bundler's per-group iteration set (spec.md §4.5 step 3).
func (r *NEIRepository) DistinctPlatformContentTypes(ctx context.Context, tenantID uuid.UUID, enabledPlatforms []models.Platform) ([]PlatformContentType, error) {
	const q = `
		SELECT DISTINCT platform, content_type
		FROM normalized_evidence_items
		WHERE tenant_id = $1 AND platform = ANY($2)
		ORDER BY platform, content_type`
	platforms := make([]string, len(enabledPlatforms))
	for i, p := range enabledPlatforms {
		platforms[i] = string(p)
	}
	rows, err := r.db.QueryContext(ctx, q, tenantID, platforms)
	if err != nil {
		return nil, fmt.Errorf("list distinct platform/content types: %w", err)
	}
	defer rows.Close()

	var out []PlatformContentType
	for rows.Next() {
		var pc PlatformContentType
		if err := rows.Scan(&pc.Platform, &pc.ContentType); err != nil {
			return nil, fmt.Errorf("scan platform/content type: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// PlatformContentType is a (platform, content_type) grouping key.
type PlatformContentType struct {
	Platform    models.Platform
	ContentType string
}

// HasNonWeb reports whether tenant has any NEI on a non-web platform among
// the enabled set — the bundler's has_non_web predicate (spec.md §4.5 step
// 2), derived from the same query surface as the candidate set.
func (r *NEIRepository) HasNonWeb(ctx context.Context, tenantID uuid.UUID, enabledPlatforms []models.Platform) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM normalized_evidence_items
			WHERE tenant_id = $1 AND platform = ANY($2) AND platform <> 'web'
		)`
	platforms := make([]string, 0, len(enabledPlatforms))
	for _, p := range enabledPlatforms {
		platforms = append(platforms, string(p))
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, tenantID, platforms).Scan(&exists); err != nil {
		return false, fmt.Errorf("check has_non_web: %w", err)
	}
	return exists, nil
}
