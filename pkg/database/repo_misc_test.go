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

func TestTenantRepository_CreateGetExists(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme"}
	require.NoError(t, tenants.Create(ctx, tenant))
	require.NotZero(t, tenant.CreatedAt)

	got, err := tenants.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)

	exists, err := tenants.Exists(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = tenants.Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)

	dup := &models.Tenant{OrgID: tenant.OrgID, Name: "Acme 2", Slug: "acme"}
	err = tenants.Create(ctx, dup)
	assert.ErrorIs(t, err, services.ErrAlreadyExists, "duplicate (org_id, slug) must be rejected")
}

func TestTenantRepository_Get_ExcludesSoftDeleted(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme"}
	require.NoError(t, tenants.Create(ctx, tenant))

	_, err := db.ExecContext(ctx, `UPDATE tenants SET deleted_at = now() WHERE id = $1`, tenant.ID)
	require.NoError(t, err)

	_, err = tenants.Get(ctx, tenant.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	exists, err := tenants.Exists(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOnboardingRepository_UpsertIsIdempotent(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme"}
	require.NoError(t, tenants.Create(ctx, tenant))

	onboardings := database.NewOnboardingRepository(db)
	_, err := onboardings.Get(ctx, tenant.ID)
	assert.ErrorIs(t, err, services.ErrNotFound, "no onboarding row yet")

	o := &models.Onboarding{
		TenantID: tenant.ID,
		Tier:     models.TierZero,
		Answers:  map[string]any{"brand_name": "Acme"},
	}
	require.NoError(t, onboardings.Upsert(ctx, o))

	got, err := onboardings.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Answers["brand_name"])

	o.Tier = models.TierOne
	o.Answers["target_audience"] = "marketers"
	require.NoError(t, onboardings.Upsert(ctx, o))

	got, err = onboardings.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TierOne, got.Tier)
	assert.Equal(t, "marketers", got.Answers["target_audience"])
}

func TestSourceConnectionRepository_CreateListEnabledCount(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme"}
	require.NoError(t, tenants.Create(ctx, tenant))

	sources := database.NewSourceConnectionRepository(db)
	enabled := &models.SourceConnection{
		TenantID: tenant.ID, Platform: models.PlatformInstagram, Capability: "posts",
		Identifier: "acme_brand", IsEnabled: true, Settings: map[string]any{},
	}
	require.NoError(t, sources.Create(ctx, enabled))

	disabled := &models.SourceConnection{
		TenantID: tenant.ID, Platform: models.PlatformTikTok, Capability: "posts",
		Identifier: "acme_brand", IsEnabled: false, Settings: map[string]any{},
	}
	require.NoError(t, sources.Create(ctx, disabled))

	dup := &models.SourceConnection{
		TenantID: tenant.ID, Platform: models.PlatformInstagram, Capability: "posts",
		Identifier: "acme_brand", IsEnabled: true, Settings: map[string]any{},
	}
	err := sources.Create(ctx, dup)
	assert.ErrorIs(t, err, services.ErrAlreadyExists, "unique by (tenant, platform, capability, identifier)")

	count, err := sources.CountEnabled(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	list, err := sources.ListEnabled(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enabled.ID, list[0].ID)

	got, err := sources.Get(ctx, tenant.ID, enabled.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme_brand", got.Identifier)
}

func TestOverridesRepository_GetReturnsEmptyDocumentWhenNone(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme"}
	require.NoError(t, tenants.Create(ctx, tenant))

	overrides := database.NewOverridesRepository(db)
	got, err := overrides.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OverridesDoc)
	assert.Empty(t, got.PinnedPaths)
}

func TestOverridesRepository_MergeNullDeletesAndReplacesPinnedWholesale(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme"}
	require.NoError(t, tenants.Create(ctx, tenant))

	overrides := database.NewOverridesRepository(db)

	out, err := overrides.Merge(ctx, tenant.ID, map[string]any{"tone": "playful", "cta": "buy now"},
		[]string{"tone"})
	require.NoError(t, err)
	assert.Equal(t, "playful", out.OverridesDoc["tone"])
	assert.Equal(t, []string{"tone"}, out.PinnedPaths)

	// {k: null} deletes an existing key; a key absent from the patch is left
	// untouched (left-identity on missing keys).
	out, err = overrides.Merge(ctx, tenant.ID, map[string]any{"cta": nil, "headline": "new"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "playful", out.OverridesDoc["tone"], "untouched key survives")
	_, hasCTA := out.OverridesDoc["cta"]
	assert.False(t, hasCTA, "null value deletes the key")
	assert.Equal(t, "new", out.OverridesDoc["headline"])
	assert.Equal(t, []string{"tone"}, out.PinnedPaths, "nil patch pinned_paths leaves the prior set untouched")

	// A non-nil pinned_paths wholesale-replaces, it does not merge.
	out, err = overrides.Merge(ctx, tenant.ID, map[string]any{}, []string{"headline"})
	require.NoError(t, err)
	assert.Equal(t, []string{"headline"}, out.PinnedPaths)

	reloaded, err := overrides.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, out.OverridesDoc, reloaded.OverridesDoc)
	assert.Equal(t, out.PinnedPaths, reloaded.PinnedPaths)
}

func TestActorRunAndRawItemRepository_Lifecycle(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme"}
	require.NoError(t, tenants.Create(ctx, tenant))

	sources := database.NewSourceConnectionRepository(db)
	sc := &models.SourceConnection{
		TenantID: tenant.ID, Platform: models.PlatformInstagram, Capability: "posts",
		Identifier: "acme", IsEnabled: true, Settings: map[string]any{},
	}
	require.NoError(t, sources.Create(ctx, sc))

	actorRuns := database.NewActorRunRepository(db)
	run := &models.ActorRun{
		TenantID: tenant.ID, SourceConnectionID: sc.ID, ActorID: "instagram-posts-scraper",
		Input: map[string]any{"limit": 15}, ExternalRunID: "run-1", ExternalDatasetID: "ds-1",
		Status: models.ActorRunRunning,
	}
	require.NoError(t, actorRuns.Create(ctx, run))

	rawItems := database.NewRawItemRepository(db)
	items := []map[string]any{{"id": "1"}, {"id": "2"}, {"id": "3"}}
	require.NoError(t, rawItems.ReplaceAll(ctx, run.ID, items))

	loaded, err := rawItems.ListByRun(ctx, run.ID, 10)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i, item := range loaded {
		assert.Equal(t, i, item.ItemIndex)
	}

	// ReplaceAll is a fixed point: running it again with the same items
	// yields the same set, not a duplicated one.
	require.NoError(t, rawItems.ReplaceAll(ctx, run.ID, items))
	loaded, err = rawItems.ListByRun(ctx, run.ID, 10)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)

	require.NoError(t, actorRuns.SetRawItemCount(ctx, run.ID, len(items)))
	require.NoError(t, actorRuns.FinishTerminal(ctx, run.ID, models.ActorRunSucceded, ""))

	latest, err := actorRuns.LatestSucceeded(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, 3, latest.RawItemCount)
	assert.Equal(t, models.ActorRunSucceded, latest.Status)

	err = actorRuns.FinishTerminal(ctx, run.ID, models.ActorRunRunning, "")
	assert.Error(t, err, "FinishTerminal rejects a non-terminal status")
}

func TestEvidenceBundleAndSnapshotRepository(t *testing.T) {
	db := util.SetupTestDatabase(t)
	ctx := context.Background()

	tenants := database.NewTenantRepository(db)
	tenant := &models.Tenant{OrgID: uuid.New(), Name: "Acme", Slug: "acme"}
	require.NoError(t, tenants.Create(ctx, tenant))

	bundles := database.NewEvidenceBundleRepository(db)
	bundle := &models.EvidenceBundle{
		TenantID: tenant.ID,
		Criteria: map[string]any{"recent_m": 3, "top_engagement_n": 5},
		ItemIDs:  []uuid.UUID{uuid.New(), uuid.New()},
		Summary:  map[string]any{"total": 2},
	}
	require.NoError(t, bundles.Create(ctx, bundle))
	require.NotZero(t, bundle.CreatedAt)

	runs := database.NewCompileRunRepository(db)
	cr := &models.CompileRun{TenantID: tenant.ID, Status: models.CompileRunPending, PromptVersion: "v1", Model: "stub", InputHash: "h1"}
	require.NoError(t, runs.Create(ctx, cr))

	snapshots := database.NewSnapshotRepository(db)
	_, err := snapshots.Latest(ctx, tenant.ID)
	assert.ErrorIs(t, err, services.ErrNotFound, "no snapshot yet")

	snap1 := &models.Snapshot{TenantID: tenant.ID, CompileRunID: cr.ID, SnapshotJSON: map[string]any{"v": 1}}
	require.NoError(t, snapshots.Create(ctx, snap1))

	byRun, err := snapshots.ByCompileRun(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, snap1.ID, byRun.ID)

	cr2 := &models.CompileRun{TenantID: tenant.ID, Status: models.CompileRunPending, PromptVersion: "v1", Model: "stub", InputHash: "h2"}
	require.NoError(t, runs.Create(ctx, cr2))
	snap2 := &models.Snapshot{TenantID: tenant.ID, CompileRunID: cr2.ID, SnapshotJSON: map[string]any{"v": 2}}
	require.NoError(t, snapshots.Create(ctx, snap2))

	latest, err := snapshots.Latest(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, snap2.ID, latest.ID, "latest is the one with the greatest created_at")
}
