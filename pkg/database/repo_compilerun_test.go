package database_test

import (
	"context"
	"testing"

	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/services"
	"github.com/brandbrain/compiler/test/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRunRepository_TransitionRunning_GuardsAgainstDoubleTransition(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme-" + uuid.NewString()}
	require.NoError(t, tenants.Create(ctx, tenant))

	runs := database.NewCompileRunRepository(db)
	cr := &models.CompileRun{TenantID: tenant.ID, Status: models.CompileRunPending, PromptVersion: "v1", Model: "stub", InputHash: "h1"}
	require.NoError(t, runs.Create(ctx, cr))

	require.NoError(t, runs.TransitionRunning(ctx, cr.ID))
	err := runs.TransitionRunning(ctx, cr.ID)
	assert.ErrorIs(t, err, services.ErrConflict, "a second transition-to-running on the same run must conflict")
}

func TestCompileRunRepository_CompleteSucceeded_GuardsAgainstNonRunningRun(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme-" + uuid.NewString()}
	require.NoError(t, tenants.Create(ctx, tenant))

	runs := database.NewCompileRunRepository(db)
	cr := &models.CompileRun{TenantID: tenant.ID, Status: models.CompileRunPending, PromptVersion: "v1", Model: "stub", InputHash: "h1"}
	require.NoError(t, runs.Create(ctx, cr))

	bundles := database.NewEvidenceBundleRepository(db)
	bundle := &models.EvidenceBundle{
		TenantID: tenant.ID,
		Criteria: map[string]any{"recent_m": 3},
		ItemIDs:  []uuid.UUID{},
		Summary:  map[string]any{},
	}
	require.NoError(t, bundles.Create(ctx, bundle))

	// Attempting to complete a still-PENDING (never transitioned-to-running)
	// run must conflict rather than silently marking it SUCCEEDED.
	err := runs.CompleteSucceeded(ctx, cr.ID, bundle.ID, map[string]any{}, map[string]any{}, map[string]any{})
	assert.ErrorIs(t, err, services.ErrConflict)

	require.NoError(t, runs.TransitionRunning(ctx, cr.ID))
	require.NoError(t, runs.CompleteSucceeded(ctx, cr.ID, bundle.ID, map[string]any{}, map[string]any{}, map[string]any{}))

	reloaded, err := runs.Get(ctx, tenant.ID, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompileRunSucceeded, reloaded.Status)
	require.NotNil(t, reloaded.BundleID)
	assert.Equal(t, bundle.ID, *reloaded.BundleID)

	// Completing an already-SUCCEEDED run a second time must also conflict
	// instead of silently re-finishing it (the regression class flagged in
	// review for Job.Fail applies identically here).
	err = runs.CompleteSucceeded(ctx, cr.ID, bundle.ID, map[string]any{}, map[string]any{}, map[string]any{})
	assert.ErrorIs(t, err, services.ErrConflict)
}

func TestCompileRunRepository_Fail_GuardsAgainstNonRunningRun(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme-" + uuid.NewString()}
	require.NoError(t, tenants.Create(ctx, tenant))

	runs := database.NewCompileRunRepository(db)
	cr := &models.CompileRun{TenantID: tenant.ID, Status: models.CompileRunPending, PromptVersion: "v1", Model: "stub", InputHash: "h1"}
	require.NoError(t, runs.Create(ctx, cr))

	err := runs.Fail(ctx, cr.ID, "boom", map[string]any{})
	assert.ErrorIs(t, err, services.ErrConflict, "failing a still-PENDING run must conflict")

	require.NoError(t, runs.TransitionRunning(ctx, cr.ID))
	require.NoError(t, runs.Fail(ctx, cr.ID, "boom", map[string]any{"failed": []any{"instagram.posts"}}))

	reloaded, err := runs.Get(ctx, tenant.ID, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompileRunFailed, reloaded.Status)
	assert.Equal(t, "boom", reloaded.Error)
	require.NotNil(t, reloaded.FinishedAt)

	// And once FAILED, a second Fail call must not re-finish it either.
	err = runs.Fail(ctx, cr.ID, "boom again", map[string]any{})
	assert.ErrorIs(t, err, services.ErrConflict)
}

func TestCompileRunRepository_Get_IsolatesByTenant(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenantA := &models.Tenant{OrgID: uuid.New(), Name: "A", Slug: "a-" + uuid.NewString()}
	tenantB := &models.Tenant{OrgID: uuid.New(), Name: "B", Slug: "b-" + uuid.NewString()}
	require.NoError(t, tenants.Create(ctx, tenantA))
	require.NoError(t, tenants.Create(ctx, tenantB))

	runs := database.NewCompileRunRepository(db)
	cr := &models.CompileRun{TenantID: tenantA.ID, Status: models.CompileRunPending, PromptVersion: "v1", Model: "stub", InputHash: "h1"}
	require.NoError(t, runs.Create(ctx, cr))

	_, err := runs.Get(ctx, tenantB.ID, cr.ID)
	assert.ErrorIs(t, err, services.ErrNotFound, "a run owned by a different tenant must read as not found")

	got, err := runs.Get(ctx, tenantA.ID, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, cr.ID, got.ID)
}

func TestCompileRunRepository_ListHistory_NewestFirstPaginated(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme-" + uuid.NewString()}
	require.NoError(t, tenants.Create(ctx, tenant))

	runs := database.NewCompileRunRepository(db)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		cr := &models.CompileRun{TenantID: tenant.ID, Status: models.CompileRunPending, PromptVersion: "v1", Model: "stub", InputHash: "h"}
		require.NoError(t, runs.Create(ctx, cr))
		ids = append(ids, cr.ID)
	}

	total, err := runs.CountForTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	page1, err := runs.ListHistory(ctx, tenant.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[2], page1[0].ID, "newest run first")
	assert.Equal(t, ids[1], page1[1].ID)

	page2, err := runs.ListHistory(ctx, tenant.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, ids[0], page2[0].ID)
}
