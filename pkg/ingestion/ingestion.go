// Package ingestion implements ingest-source (spec.md §4.3): launching the
// upstream actor for a single SourceConnection, polling it to completion,
// storing its raw items, and handing off to normalization.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brandbrain/compiler/pkg/actorclient"
	"github.com/brandbrain/compiler/pkg/metrics"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Normalizer is the narrow dependency on C4 that ingest-source invokes after
// storing raw items (step 7).
type Normalizer interface {
	NormalizeActorRun(ctx context.Context, actorRunID uuid.UUID, fetchLimit int) (itemsCreated, itemsUpdated int, err error)
}

// ActorRunStore is the subset of database.ActorRunRepository ingest-source
// needs.
type ActorRunStore interface {
	Create(ctx context.Context, run *models.ActorRun) error
	FinishTerminal(ctx context.Context, id uuid.UUID, status models.ActorRunStatus, errorSummary string) error
	SetRawItemCount(ctx context.Context, id uuid.UUID, count int) error
}

// RawItemStore is the subset of database.RawItemRepository ingest-source
// needs.
type RawItemStore interface {
	ReplaceAll(ctx context.Context, actorRunID uuid.UUID, items []map[string]any) error
}

// Config holds the ingestion pipeline's tunables.
type Config struct {
	PollTimeout  time.Duration
	PollInterval time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{PollTimeout: 5 * time.Minute, PollInterval: 5 * time.Second}
}

// Result is the outcome of ingest-source (spec.md §4.3).
type Result struct {
	Success           bool
	Skipped           bool
	ApifyRunID        string
	ApifyRunStatus    actorclient.RunStatus
	RawItemsCount     int
	NormalizedCreated int
	NormalizedUpdated int
	Error             string
}

// Pipeline runs ingest-source for one SourceConnection at a time.
type Pipeline struct {
	actors     actorclient.Client
	registry   *Registry
	actorRuns  ActorRunStore
	rawItems   RawItemStore
	normalizer Normalizer
	limiter    ratelimit.Limiter
	config     Config
}

// NewPipeline constructs a Pipeline. limiter gates actor launches per tenant
// (spec.md §1's quota caps); pass an ratelimit.InMemoryLimiter or
// ratelimit.RedisLimiter with a generous limit if quotas are not a concern.
func NewPipeline(actors actorclient.Client, registry *Registry, actorRuns ActorRunStore, rawItems RawItemStore, normalizer Normalizer, limiter ratelimit.Limiter, config Config) *Pipeline {
	return &Pipeline{
		actors:     actors,
		registry:   registry,
		actorRuns:  actorRuns,
		rawItems:   rawItems,
		normalizer: normalizer,
		limiter:    limiter,
		config:     config,
	}
}

// IngestSource runs the full ingest-source algorithm for sc.
func (p *Pipeline) IngestSource(ctx context.Context, tenantID uuid.UUID, sc *models.SourceConnection) (Result, error) {
	if !p.registry.IsCapabilityEnabled(sc.Platform, sc.Capability) {
		return Result{Success: true, Skipped: true}, nil
	}

	spec, err := p.registry.Resolve(sc.Platform, sc.Capability)
	if err != nil {
		return Result{}, fmt.Errorf("ingest source: %w", err)
	}

	allowed, err := p.limiter.Allow(ctx, tenantID.String())
	if err != nil {
		return Result{}, fmt.Errorf("ingest source: rate limit check: %w", err)
	}
	if !allowed {
		return Result{Success: false, Error: "actor launch quota exceeded for this tenant"}, nil
	}

	timer := prometheus.NewTimer(metrics.IngestionDuration.WithLabelValues(string(sc.Platform), sc.Capability))
	defer timer.ObserveDuration()

	input := spec.BuildInput(sc, spec.Cap)

	started, err := p.actors.StartRun(ctx, spec.ActorID, input)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	run := &models.ActorRun{
		TenantID:           tenantID,
		SourceConnectionID: sc.ID,
		ActorID:            spec.ActorID,
		Input:              input,
		ExternalRunID:      started.RunID,
		ExternalDatasetID:  started.DatasetID,
		Status:             models.ActorRunRunning,
	}
	if err := p.actorRuns.Create(ctx, run); err != nil {
		return Result{}, fmt.Errorf("ingest source: persist actor run: %w", err)
	}

	info, pollErr := p.actors.PollRun(ctx, started.RunID, p.config.PollTimeout, p.config.PollInterval)
	if pollErr != nil {
		var timeoutErr *actorclient.TimeoutError
		status := models.ActorRunFailed
		if errors.As(pollErr, &timeoutErr) {
			status = models.ActorRunTimedOut
		}
		_ = p.actorRuns.FinishTerminal(ctx, run.ID, status, pollErr.Error())
		return Result{Success: false, ApifyRunID: started.RunID, Error: pollErr.Error()}, nil
	}

	runStatus := toActorRunStatus(info.Status)
	if info.Status != actorclient.RunStatusSucceeded {
		_ = p.actorRuns.FinishTerminal(ctx, run.ID, runStatus, info.ErrorText)
		return Result{
			Success:        false,
			ApifyRunID:     started.RunID,
			ApifyRunStatus: info.Status,
			Error:          info.ErrorText,
		}, nil
	}

	items, err := p.actors.FetchItems(ctx, started.DatasetID, spec.Cap, 0)
	if err != nil {
		_ = p.actorRuns.FinishTerminal(ctx, run.ID, models.ActorRunFailed, err.Error())
		return Result{Success: false, ApifyRunID: started.RunID, Error: err.Error()}, nil
	}

	if err := p.rawItems.ReplaceAll(ctx, run.ID, items); err != nil {
		return Result{}, fmt.Errorf("ingest source: replace raw items: %w", err)
	}
	if err := p.actorRuns.SetRawItemCount(ctx, run.ID, len(items)); err != nil {
		return Result{}, fmt.Errorf("ingest source: set raw item count: %w", err)
	}
	if err := p.actorRuns.FinishTerminal(ctx, run.ID, models.ActorRunSucceded, ""); err != nil {
		return Result{}, fmt.Errorf("ingest source: finish actor run: %w", err)
	}

	created, updated, err := p.normalizer.NormalizeActorRun(ctx, run.ID, spec.Cap)
	if err != nil {
		return Result{
			Success:        false,
			ApifyRunID:     started.RunID,
			ApifyRunStatus: info.Status,
			RawItemsCount:  len(items),
			Error:          err.Error(),
		}, nil
	}

	return Result{
		Success:           true,
		ApifyRunID:        started.RunID,
		ApifyRunStatus:    info.Status,
		RawItemsCount:     len(items),
		NormalizedCreated: created,
		NormalizedUpdated: updated,
	}, nil
}

func toActorRunStatus(s actorclient.RunStatus) models.ActorRunStatus {
	switch s {
	case actorclient.RunStatusSucceeded:
		return models.ActorRunSucceded
	case actorclient.RunStatusFailed:
		return models.ActorRunFailed
	case actorclient.RunStatusTimedOut:
		return models.ActorRunTimedOut
	case actorclient.RunStatusAborted:
		return models.ActorRunAborted
	default:
		return models.ActorRunFailed
	}
}
