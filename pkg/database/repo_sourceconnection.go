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

// SourceConnectionRepository persists SourceConnection rows.
type SourceConnectionRepository struct {
	db *sql.DB
}

// NewSourceConnectionRepository constructs a SourceConnectionRepository.
func NewSourceConnectionRepository(db *sql.DB) *SourceConnectionRepository {
	return &SourceConnectionRepository{db: db}
}

// ListEnabled returns all enabled source connections for a tenant, ordered
// by (platform, capability, identifier) for the stable processing order
// spec.md §5 requires.
func (r *SourceConnectionRepository) ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]*models.SourceConnection, error) {
	const q = `
		SELECT id, tenant_id, platform, capability, identifier, is_enabled, settings, created_at, updated_at
		FROM source_connections
		WHERE tenant_id = $1 AND is_enabled = true
		ORDER BY platform, capability, identifier`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list enabled source connections: %w", err)
	}
	defer rows.Close()

	var out []*models.SourceConnection
	for rows.Next() {
		sc := &models.SourceConnection{}
		var settings []byte
		if err := rows.Scan(&sc.ID, &sc.TenantID, &sc.Platform, &sc.Capability, &sc.Identifier,
			&sc.IsEnabled, &settings, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source connection: %w", err)
		}
		sc.Settings, err = unmarshalJSONBMap(settings)
		if err != nil {
			return nil, fmt.Errorf("decode source connection settings: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Get loads a single source connection by ID, scoped to tenant.
func (r *SourceConnectionRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.SourceConnection, error) {
	const q = `
		SELECT id, tenant_id, platform, capability, identifier, is_enabled, settings, created_at, updated_at
		FROM source_connections WHERE id = $1 AND tenant_id = $2`
	sc := &models.SourceConnection{}
	var settings []byte
	err := r.db.QueryRowContext(ctx, q, id, tenantID).Scan(&sc.ID, &sc.TenantID, &sc.Platform, &sc.Capability,
		&sc.Identifier, &sc.IsEnabled, &settings, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source connection: %w", err)
	}
	sc.Settings, err = unmarshalJSONBMap(settings)
	if err != nil {
		return nil, fmt.Errorf("decode source connection settings: %w", err)
	}
	return sc, nil
}

// Create inserts a new source connection.
func (r *SourceConnectionRepository) Create(ctx context.Context, sc *models.SourceConnection) error {
	settings, err := json.Marshal(sc.Settings)
	if err != nil {
		return fmt.Errorf("encode source connection settings: %w", err)
	}
	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	const q = `
		INSERT INTO source_connections (id, tenant_id, platform, capability, identifier, is_enabled, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, q, sc.ID, sc.TenantID, sc.Platform, sc.Capability, sc.Identifier,
		sc.IsEnabled, settings).Scan(&sc.CreatedAt, &sc.UpdatedAt)
	if isUniqueViolation(err) {
		return services.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create source connection: %w", err)
	}
	return nil
}

// CountEnabled reports how many enabled source connections a tenant has,
// used by compile gating ("at least one enabled SourceConnection").
func (r *SourceConnectionRepository) CountEnabled(ctx context.Context, tenantID uuid.UUID) (int, error) {
	const q = `SELECT count(*) FROM source_connections WHERE tenant_id = $1 AND is_enabled = true`
	var n int
	if err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count enabled source connections: %w", err)
	}
	return n, nil
}
