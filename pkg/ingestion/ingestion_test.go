package ingestion_test

import (
	"context"
	"testing"
	"time"

	"github.com/brandbrain/compiler/pkg/actorclient"
	"github.com/brandbrain/compiler/pkg/ingestion"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActorClient struct {
	startResult actorclient.StartResult
	startErr    error
	pollInfo    actorclient.RunInfo
	pollErr     error
	items       []map[string]any
	fetchErr    error
}

func (f *fakeActorClient) StartRun(context.Context, string, map[string]any) (actorclient.StartResult, error) {
	return f.startResult, f.startErr
}

func (f *fakeActorClient) PollRun(context.Context, string, time.Duration, time.Duration) (actorclient.RunInfo, error) {
	return f.pollInfo, f.pollErr
}

func (f *fakeActorClient) FetchItems(context.Context, string, int, int) ([]map[string]any, error) {
	return f.items, f.fetchErr
}

type fakeActorRunStore struct {
	finishedStatus models.ActorRunStatus
	rawItemCount   int
}

func (f *fakeActorRunStore) Create(_ context.Context, run *models.ActorRun) error {
	run.ID = uuid.New()
	return nil
}

func (f *fakeActorRunStore) FinishTerminal(_ context.Context, _ uuid.UUID, status models.ActorRunStatus, _ string) error {
	f.finishedStatus = status
	return nil
}

func (f *fakeActorRunStore) SetRawItemCount(_ context.Context, _ uuid.UUID, count int) error {
	f.rawItemCount = count
	return nil
}

type fakeRawItemStore struct {
	replaced []map[string]any
}

func (f *fakeRawItemStore) ReplaceAll(_ context.Context, _ uuid.UUID, items []map[string]any) error {
	f.replaced = items
	return nil
}

type fakeNormalizer struct {
	created, updated int
	err              error
}

func (f *fakeNormalizer) NormalizeActorRun(context.Context, uuid.UUID, int) (int, int, error) {
	return f.created, f.updated, f.err
}

func TestIngestSource_SucceedsEndToEnd(t *testing.T) {
	actors := &fakeActorClient{
		startResult: actorclient.StartResult{RunID: "run-1", DatasetID: "dataset-1"},
		pollInfo:    actorclient.RunInfo{RunID: "run-1", Status: actorclient.RunStatusSucceeded},
		items:       []map[string]any{{"id": "1"}, {"id": "2"}},
	}
	actorRuns := &fakeActorRunStore{}
	rawItems := &fakeRawItemStore{}
	normalizer := &fakeNormalizer{created: 2, updated: 0}

	pipeline := ingestion.NewPipeline(actors, ingestion.NewRegistry(true), actorRuns, rawItems, normalizer, ratelimit.NewInMemoryLimiter(1000, time.Hour), ingestion.DefaultConfig())
	sc := &models.SourceConnection{ID: uuid.New(), Platform: models.PlatformInstagram, Capability: "posts", Identifier: "acme"}

	result, err := pipeline.IngestSource(context.Background(), uuid.New(), sc)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RawItemsCount)
	assert.Equal(t, 2, result.NormalizedCreated)
	assert.Equal(t, models.ActorRunSucceded, actorRuns.finishedStatus)
	assert.Len(t, rawItems.replaced, 2)
}

func TestIngestSource_PollTimeoutMarksTimedOut(t *testing.T) {
	actors := &fakeActorClient{
		startResult: actorclient.StartResult{RunID: "run-1", DatasetID: "dataset-1"},
		pollErr:     &actorclient.TimeoutError{RunID: "run-1"},
	}
	actorRuns := &fakeActorRunStore{}
	pipeline := ingestion.NewPipeline(actors, ingestion.NewRegistry(true), actorRuns, &fakeRawItemStore{}, &fakeNormalizer{}, ratelimit.NewInMemoryLimiter(1000, time.Hour), ingestion.DefaultConfig())
	sc := &models.SourceConnection{ID: uuid.New(), Platform: models.PlatformInstagram, Capability: "posts", Identifier: "acme"}

	result, err := pipeline.IngestSource(context.Background(), uuid.New(), sc)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ActorRunTimedOut, actorRuns.finishedStatus)
}

func TestIngestSource_NonSucceededTerminalReportsFailure(t *testing.T) {
	actors := &fakeActorClient{
		startResult: actorclient.StartResult{RunID: "run-1", DatasetID: "dataset-1"},
		pollInfo:    actorclient.RunInfo{RunID: "run-1", Status: actorclient.RunStatusFailed, ErrorText: "upstream failure"},
	}
	actorRuns := &fakeActorRunStore{}
	pipeline := ingestion.NewPipeline(actors, ingestion.NewRegistry(true), actorRuns, &fakeRawItemStore{}, &fakeNormalizer{}, ratelimit.NewInMemoryLimiter(1000, time.Hour), ingestion.DefaultConfig())
	sc := &models.SourceConnection{ID: uuid.New(), Platform: models.PlatformInstagram, Capability: "posts", Identifier: "acme"}

	result, err := pipeline.IngestSource(context.Background(), uuid.New(), sc)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, actorclient.RunStatusFailed, result.ApifyRunStatus)
	assert.Equal(t, "upstream failure", result.Error)
}

func TestIngestSource_SkipsDisabledCapability(t *testing.T) {
	registry := ingestion.NewRegistry(false)
	sc := &models.SourceConnection{
		Platform:   models.PlatformLinkedIn,
		Capability: "profile_posts",
	}

	assert.False(t, registry.IsCapabilityEnabled(sc.Platform, sc.Capability))

	pipeline := ingestion.NewPipeline(&fakeActorClient{}, registry, &fakeActorRunStore{}, &fakeRawItemStore{}, &fakeNormalizer{}, ratelimit.NewInMemoryLimiter(1000, time.Hour), ingestion.DefaultConfig())
	result, err := pipeline.IngestSource(context.Background(), uuid.New(), sc)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Skipped)
}

func TestRegistry_UnknownCapabilityFailsLoudly(t *testing.T) {
	registry := ingestion.NewRegistry(true)
	_, err := registry.Resolve(models.PlatformInstagram, "nonexistent")
	require.Error(t, err)
}

func TestRegistry_EnabledCapabilityResolves(t *testing.T) {
	registry := ingestion.NewRegistry(true)
	assert.True(t, registry.IsCapabilityEnabled(models.PlatformLinkedIn, "profile_posts"))

	spec, err := registry.Resolve(models.PlatformInstagram, "posts")
	require.NoError(t, err)
	assert.NotEmpty(t, spec.ActorID)
	assert.Greater(t, spec.Cap, 0)

	sc := &models.SourceConnection{Identifier: "acme", Settings: map[string]any{"extra_start_urls": []string{"https://a"}}}
	input := spec.BuildInput(sc, spec.Cap)
	assert.Equal(t, "acme", input["identifier"])
	assert.Equal(t, spec.Cap, input["max_items"])
	assert.Contains(t, input, "extra_start_urls")
}

func TestRegistry_CapabilityKeysAreIndependent(t *testing.T) {
	registry := ingestion.NewRegistry(false)
	assert.True(t, registry.IsCapabilityEnabled(models.PlatformLinkedIn, "company_posts"))
	assert.False(t, registry.IsCapabilityEnabled(models.PlatformLinkedIn, "profile_posts"))
}
