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

// CompileRunRepository persists CompileRun rows.
type CompileRunRepository struct {
	db *sql.DB
}

// NewCompileRunRepository constructs a CompileRunRepository.
func NewCompileRunRepository(db *sql.DB) *CompileRunRepository {
	return &CompileRunRepository{db: db}
}

// Create inserts a new PENDING compile run.
func (r *CompileRunRepository) Create(ctx context.Context, cr *models.CompileRun) error {
	onboardingSnap, err := marshalJSONB(cr.OnboardingSnap)
	if err != nil {
		return fmt.Errorf("encode onboarding snapshot: %w", err)
	}
	evidenceStatus, err := marshalJSONB(cr.EvidenceStatus)
	if err != nil {
		return fmt.Errorf("encode evidence status: %w", err)
	}
	if cr.ID == uuid.Nil {
		cr.ID = uuid.New()
	}
	const q = `
		INSERT INTO compile_runs
			(id, tenant_id, status, prompt_version, model, input_hash, onboarding_snapshot, evidence_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING started_at`
	err = r.db.QueryRowContext(ctx, q, cr.ID, cr.TenantID, cr.Status, cr.PromptVersion, cr.Model, cr.InputHash,
		onboardingSnap, evidenceStatus).Scan(&cr.StartedAt)
	if err != nil {
		return fmt.Errorf("create compile run: %w", err)
	}
	return nil
}

// Get loads a compile run scoped to tenant. The WHERE id=? AND tenant_id=?
// predicate is the sole data-isolation mechanism (spec.md §4.7): a run
// owned by a different tenant is indistinguishable from a missing one.
func (r *CompileRunRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.CompileRun, error) {
	const q = `
		SELECT id, tenant_id, status, prompt_version, model, input_hash, onboarding_snapshot,
		       bundle_id, evidence_status, draft, qa_report, error, started_at, finished_at
		FROM compile_runs WHERE id = $1 AND tenant_id = $2`
	return r.scanOne(ctx, q, id, tenantID)
}

// LatestForTenant returns the most recently started compile run for tenant,
// or services.ErrNotFound if none exists.
func (r *CompileRunRepository) LatestForTenant(ctx context.Context, tenantID uuid.UUID) (*models.CompileRun, error) {
	const q = `
		SELECT id, tenant_id, status, prompt_version, model, input_hash, onboarding_snapshot,
		       bundle_id, evidence_status, draft, qa_report, error, started_at, finished_at
		FROM compile_runs WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT 1`
	return r.scanOne(ctx, q, tenantID)
}

func (r *CompileRunRepository) scanOne(ctx context.Context, q string, args ...any) (*models.CompileRun, error) {
	cr := &models.CompileRun{}
	var onboardingSnap, evidenceStatus, draft, qaReport []byte
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&cr.ID, &cr.TenantID, &cr.Status, &cr.PromptVersion,
		&cr.Model, &cr.InputHash, &onboardingSnap, &cr.BundleID, &evidenceStatus, &draft, &qaReport,
		&cr.Error, &cr.StartedAt, &cr.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan compile run: %w", err)
	}
	if cr.OnboardingSnap, err = unmarshalJSONBMap(onboardingSnap); err != nil {
		return nil, fmt.Errorf("decode onboarding snapshot: %w", err)
	}
	if cr.EvidenceStatus, err = unmarshalJSONBMap(evidenceStatus); err != nil {
		return nil, fmt.Errorf("decode evidence status: %w", err)
	}
	if len(draft) > 0 {
		if err := json.Unmarshal(draft, &cr.Draft); err != nil {
			return nil, fmt.Errorf("decode draft: %w", err)
		}
	}
	if len(qaReport) > 0 {
		if err := json.Unmarshal(qaReport, &cr.QAReport); err != nil {
			return nil, fmt.Errorf("decode qa report: %w", err)
		}
	}
	return cr, nil
}

// ListHistory returns compile runs for tenant newest-first, paginated.
func (r *CompileRunRepository) ListHistory(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]*models.CompileRun, error) {
	offset := (page - 1) * pageSize
	const q = `
		SELECT id, tenant_id, status, prompt_version, model, input_hash, onboarding_snapshot,
		       bundle_id, evidence_status, draft, qa_report, error, started_at, finished_at
		FROM compile_runs WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, q, tenantID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list compile run history: %w", err)
	}
	defer rows.Close()

	var out []*models.CompileRun
	for rows.Next() {
		cr := &models.CompileRun{}
		var onboardingSnap, evidenceStatus, draft, qaReport []byte
		if err := rows.Scan(&cr.ID, &cr.TenantID, &cr.Status, &cr.PromptVersion, &cr.Model, &cr.InputHash,
			&onboardingSnap, &cr.BundleID, &evidenceStatus, &draft, &qaReport, &cr.Error, &cr.StartedAt,
			&cr.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan compile run history row: %w", err)
		}
		if cr.OnboardingSnap, err = unmarshalJSONBMap(onboardingSnap); err != nil {
			return nil, fmt.Errorf("decode onboarding snapshot: %w", err)
		}
		if cr.EvidenceStatus, err = unmarshalJSONBMap(evidenceStatus); err != nil {
			return nil, fmt.Errorf("decode evidence status: %w", err)
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// CountForTenant returns the total number of compile runs for tenant, for
// history pagination metadata.
func (r *CompileRunRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	const q = `SELECT count(*) FROM compile_runs WHERE tenant_id = $1`
	var n int
	if err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count compile runs: %w", err)
	}
	return n, nil
}

// TransitionRunning moves a PENDING compile run to RUNNING.
func (r *CompileRunRepository) TransitionRunning(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE compile_runs SET status = 'RUNNING' WHERE id = $1 AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("transition compile run to running: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.ErrConflict
	}
	return nil
}

// CompleteSucceeded transitions a RUNNING compile run to SUCCEEDED, storing
// the bundle reference, evidence status, draft, and QA report. Predicated on
// status='RUNNING', like TransitionRunning, so a run already finished by a
// previous call can't be silently re-finished.
func (r *CompileRunRepository) CompleteSucceeded(ctx context.Context, id, bundleID uuid.UUID, evidenceStatus, draft, qaReport map[string]any) error {
	evidenceStatusJSON, err := marshalJSONB(evidenceStatus)
	if err != nil {
		return fmt.Errorf("encode evidence status: %w", err)
	}
	draftJSON, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	qaReportJSON, err := json.Marshal(qaReport)
	if err != nil {
		return fmt.Errorf("encode qa report: %w", err)
	}
	const q = `
		UPDATE compile_runs
		SET status = 'SUCCEEDED', bundle_id = $2, evidence_status = $3, draft = $4, qa_report = $5,
		    finished_at = now()
		WHERE id = $1 AND status = 'RUNNING'`
	res, err := r.db.ExecContext(ctx, q, id, bundleID, evidenceStatusJSON, draftJSON, qaReportJSON)
	if err != nil {
		return fmt.Errorf("complete compile run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.ErrConflict
	}
	return nil
}

// Fail transitions a compile run to FAILED, recording the error and any
// evidence status gathered before the failure. Predicated on status='RUNNING'
// for the same reason as CompleteSucceeded.
func (r *CompileRunRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string, evidenceStatus map[string]any) error {
	evidenceStatusJSON, err := marshalJSONB(evidenceStatus)
	if err != nil {
		return fmt.Errorf("encode evidence status: %w", err)
	}
	const q = `
		UPDATE compile_runs SET status = 'FAILED', error = $2, evidence_status = $3, finished_at = now()
		WHERE id = $1 AND status = 'RUNNING'`
	res, err := r.db.ExecContext(ctx, q, id, errMsg, evidenceStatusJSON)
	if err != nil {
		return fmt.Errorf("fail compile run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.ErrConflict
	}
	return nil
}
