package freshness_test

import (
	"context"
	"testing"
	"time"

	"github.com/brandbrain/compiler/pkg/freshness"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActorRunLookup struct {
	runs map[uuid.UUID]*models.ActorRun
}

func (f *fakeActorRunLookup) LatestSucceeded(_ context.Context, sourceConnectionID uuid.UUID) (*models.ActorRun, error) {
	run, ok := f.runs[sourceConnectionID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return run, nil
}

func TestCheckFreshness_ForceRefresh(t *testing.T) {
	checker := freshness.NewChecker(&fakeActorRunLookup{}, freshness.DefaultConfig())
	sc := &models.SourceConnection{ID: uuid.New()}

	d, err := checker.CheckFreshness(context.Background(), sc, true)
	require.NoError(t, err)
	assert.True(t, d.ShouldRefresh)
	assert.Equal(t, freshness.ReasonForceRefresh, d.Reason)
}

func TestCheckFreshness_NoCachedRun(t *testing.T) {
	checker := freshness.NewChecker(&fakeActorRunLookup{runs: map[uuid.UUID]*models.ActorRun{}}, freshness.DefaultConfig())
	sc := &models.SourceConnection{ID: uuid.New()}

	d, err := checker.CheckFreshness(context.Background(), sc, false)
	require.NoError(t, err)
	assert.True(t, d.ShouldRefresh)
	assert.Equal(t, freshness.ReasonNoCachedRun, d.Reason)
}

func TestCheckFreshness_StaleBeyondTTL(t *testing.T) {
	scID := uuid.New()
	old := time.Now().Add(-25 * time.Hour)
	lookup := &fakeActorRunLookup{runs: map[uuid.UUID]*models.ActorRun{
		scID: {SourceConnectionID: scID, Status: models.ActorRunSucceded, FinishedAt: &old},
	}}
	checker := freshness.NewChecker(lookup, freshness.DefaultConfig())
	sc := &models.SourceConnection{ID: scID}

	d, err := checker.CheckFreshness(context.Background(), sc, false)
	require.NoError(t, err)
	assert.True(t, d.ShouldRefresh)
	assert.Equal(t, freshness.ReasonStale, d.Reason)
}

func TestCheckFreshness_FreshWithinTTL(t *testing.T) {
	scID := uuid.New()
	recent := time.Now().Add(-1 * time.Hour)
	lookup := &fakeActorRunLookup{runs: map[uuid.UUID]*models.ActorRun{
		scID: {SourceConnectionID: scID, Status: models.ActorRunSucceded, FinishedAt: &recent},
	}}
	checker := freshness.NewChecker(lookup, freshness.DefaultConfig())
	sc := &models.SourceConnection{ID: scID}

	d, err := checker.CheckFreshness(context.Background(), sc, false)
	require.NoError(t, err)
	assert.False(t, d.ShouldRefresh)
	assert.Equal(t, freshness.ReasonFresh, d.Reason)
}

func TestAnySourceStale(t *testing.T) {
	freshID := uuid.New()
	recent := time.Now().Add(-1 * time.Hour)
	lookup := &fakeActorRunLookup{runs: map[uuid.UUID]*models.ActorRun{
		freshID: {SourceConnectionID: freshID, Status: models.ActorRunSucceded, FinishedAt: &recent},
	}}
	checker := freshness.NewChecker(lookup, freshness.DefaultConfig())

	stale, err := checker.AnySourceStale(context.Background(), []*models.SourceConnection{
		{ID: freshID},
		{ID: uuid.New()}, // no cached run -> stale
	})
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestComputeInputHash_StableUnderKeyOrdering(t *testing.T) {
	sources := []*models.SourceConnection{
		{Platform: models.PlatformInstagram, Capability: "posts", Identifier: "acme", Settings: map[string]any{"extra_start_urls": []any{"https://a"}}},
	}

	h1, err := freshness.ComputeInputHash(
		map[string]any{"b": 2, "a": 1},
		map[string]any{"y": "2", "x": "1"},
		[]string{"b.path", "a.path"},
		sources, "v1", "gpt-x",
	)
	require.NoError(t, err)

	h2, err := freshness.ComputeInputHash(
		map[string]any{"a": 1, "b": 2},
		map[string]any{"x": "1", "y": "2"},
		[]string{"a.path", "b.path"},
		sources, "v1", "gpt-x",
	)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "hash must be stable under map key and pinned-path ordering")
	assert.Len(t, h1, 64, "sha256 hex digest is 64 characters")
}

func TestComputeInputHash_ChangesWithPromptVersion(t *testing.T) {
	h1, err := freshness.ComputeInputHash(nil, nil, nil, nil, "v1", "gpt-x")
	require.NoError(t, err)
	h2, err := freshness.ComputeInputHash(nil, nil, nil, nil, "v2", "gpt-x")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestComputeInputHash_IgnoresCosmeticSettings(t *testing.T) {
	base := []*models.SourceConnection{
		{Platform: models.PlatformWeb, Capability: "crawl_pages", Identifier: "acme.com", Settings: map[string]any{"display_name": "Acme"}},
	}
	withCosmeticChange := []*models.SourceConnection{
		{Platform: models.PlatformWeb, Capability: "crawl_pages", Identifier: "acme.com", Settings: map[string]any{"display_name": "Acme Inc"}},
	}

	h1, err := freshness.ComputeInputHash(nil, nil, nil, base, "v1", "gpt-x")
	require.NoError(t, err)
	h2, err := freshness.ComputeInputHash(nil, nil, nil, withCosmeticChange, "v1", "gpt-x")
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "cosmetic settings keys must not affect the input hash")
}
