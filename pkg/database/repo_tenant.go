package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/services"
	"github.com/google/uuid"
)

// TenantRepository persists Tenant rows.
type TenantRepository struct {
	db *sql.DB
}

// NewTenantRepository constructs a TenantRepository.
func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a new tenant.
func (r *TenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	const q = `
		INSERT INTO tenants (id, org_id, name, slug)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, q, t.ID, t.OrgID, t.Name, t.Slug).Scan(&t.CreatedAt)
	if isUniqueViolation(err) {
		return services.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// Get loads a tenant by ID, excluding soft-deleted rows.
func (r *TenantRepository) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	const q = `
		SELECT id, org_id, name, slug, deleted_at, created_at
		FROM tenants WHERE id = $1 AND deleted_at IS NULL`
	t := &models.Tenant{}
	err := r.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.OrgID, &t.Name, &t.Slug, &t.DeletedAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// Exists reports whether a non-deleted tenant with id exists, without
// pulling the full row — used by the compile kickoff path, which only needs
// a 404 check.
func (r *TenantRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1 AND deleted_at IS NULL)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check tenant exists: %w", err)
	}
	return exists, nil
}
