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

// OnboardingRepository persists the one-per-tenant Onboarding row.
type OnboardingRepository struct {
	db *sql.DB
}

// NewOnboardingRepository constructs an OnboardingRepository.
func NewOnboardingRepository(db *sql.DB) *OnboardingRepository {
	return &OnboardingRepository{db: db}
}

// Get loads the onboarding row for tenantID.
func (r *OnboardingRepository) Get(ctx context.Context, tenantID uuid.UUID) (*models.Onboarding, error) {
	const q = `SELECT tenant_id, tier, answers, updated_at FROM onboardings WHERE tenant_id = $1`
	o := &models.Onboarding{}
	var answers []byte
	err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&o.TenantID, &o.Tier, &answers, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get onboarding: %w", err)
	}
	o.Answers, err = unmarshalJSONBMap(answers)
	if err != nil {
		return nil, fmt.Errorf("decode onboarding answers: %w", err)
	}
	return o, nil
}

// Upsert inserts or replaces the onboarding row for o.TenantID.
func (r *OnboardingRepository) Upsert(ctx context.Context, o *models.Onboarding) error {
	answers, err := json.Marshal(o.Answers)
	if err != nil {
		return fmt.Errorf("encode onboarding answers: %w", err)
	}
	const q = `
		INSERT INTO onboardings (tenant_id, tier, answers, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id) DO UPDATE
		SET tier = EXCLUDED.tier, answers = EXCLUDED.answers, updated_at = now()
		RETURNING updated_at`
	if err := r.db.QueryRowContext(ctx, q, o.TenantID, o.Tier, answers).Scan(&o.UpdatedAt); err != nil {
		return fmt.Errorf("upsert onboarding: %w", err)
	}
	return nil
}
