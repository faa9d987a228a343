package compile

import (
	"context"
	"fmt"

	"github.com/brandbrain/compiler/pkg/bundler"
	"github.com/brandbrain/compiler/pkg/freshness"
	"github.com/brandbrain/compiler/pkg/ingestion"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
)

// Normalizer is the narrow dependency the worker body needs to re-derive
// NEIs from a cached actor run on "reuse" (spec.md §4.3 step 2: idempotent).
type Normalizer interface {
	NormalizeActorRun(ctx context.Context, actorRunID uuid.UUID, fetchLimit int) (itemsCreated, itemsUpdated int, err error)
}

// IngestionPipeline is the narrow dependency on ingestion.Pipeline.
type IngestionPipeline interface {
	IngestSource(ctx context.Context, tenantID uuid.UUID, sc *models.SourceConnection) (ingestion.Result, error)
}

// ActorSpecResolver is the narrow dependency on ingestion.Registry the
// executor needs to resolve a source's fetch cap (spec.md §4.3) on the
// freshness "reuse" path, the same cap ingestion.Pipeline.IngestSource
// applies on the "refresh" path.
type ActorSpecResolver interface {
	Resolve(platform models.Platform, capability string) (ingestion.ActorSpec, error)
}

// Bundler is the narrow dependency on bundler.Bundler.
type Bundler interface {
	Bundle(ctx context.Context, tenantID uuid.UUID, enabledPlatforms []models.Platform) (bundler.Result, error)
}

// BundleStore persists the immutable evidence bundle the worker body writes
// before compiling a snapshot.
type BundleStore interface {
	Create(ctx context.Context, b *models.EvidenceBundle) error
}

// SnapshotWriter persists the immutable snapshot the worker body writes on
// success.
type SnapshotWriter interface {
	Create(ctx context.Context, s *models.Snapshot) error
}

// CompileRunTransitioner is the subset of CompileRunStore the worker body
// needs to drive the CompileRun state machine (spec.md §4.3).
type CompileRunTransitioner interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.CompileRun, error)
	TransitionRunning(ctx context.Context, id uuid.UUID) error
	CompleteSucceeded(ctx context.Context, id, bundleID uuid.UUID, evidenceStatus, draft, qaReport map[string]any) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string, evidenceStatus map[string]any) error
}

// DraftComposer produces the (stubbed, spec.md §4.3) draft and QA report
// from a selected evidence bundle. See StubComposer.
type DraftComposer interface {
	Compose(ctx context.Context, tenantID uuid.UUID, bundle bundler.Result, onboardingSnap map[string]any) (draft, qaReport map[string]any, err error)
}

// Executor implements queue.JobExecutor: the compile worker body (spec.md
// §4.3). It is the single in-flight-job unit a heartbeat protects.
type Executor struct {
	runs       CompileRunTransitioner
	sources    SourceConnectionLister
	freshness  *freshness.Checker
	ingest     IngestionPipeline
	normalizer Normalizer
	actorSpecs ActorSpecResolver
	bundler    Bundler
	bundles    BundleStore
	snapshots  SnapshotWriter
	composer   DraftComposer
}

// NewExecutor constructs an Executor.
func NewExecutor(
	runs CompileRunTransitioner,
	sources SourceConnectionLister,
	checker *freshness.Checker,
	ingest IngestionPipeline,
	normalizer Normalizer,
	actorSpecs ActorSpecResolver,
	bundlerImpl Bundler,
	bundles BundleStore,
	snapshots SnapshotWriter,
	composer DraftComposer,
) *Executor {
	return &Executor{
		runs:       runs,
		sources:    sources,
		freshness:  checker,
		ingest:     ingest,
		normalizer: normalizer,
		actorSpecs: actorSpecs,
		bundler:    bundlerImpl,
		bundles:    bundles,
		snapshots:  snapshots,
		composer:   composer,
	}
}

// Execute runs the worker body for one Job: transitions CompileRun to
// RUNNING, iterates enabled sources in stable order, bundles, composes a
// draft, and writes a Snapshot. Errors raised after the transition to
// RUNNING, up to and including persisting the Snapshot, are recorded on the
// CompileRun as FAILED before being returned to the caller; a failure to
// load the run, to transition it to RUNNING, or to mark it SUCCEEDED is
// returned without changing the CompileRun (queue.Worker additionally
// records the job-level failure for retry accounting).
func (e *Executor) Execute(ctx context.Context, job *models.Job) error {
	run, err := e.runs.Get(ctx, job.TenantID, job.CompileRunID)
	if err != nil {
		return fmt.Errorf("load compile run: %w", err)
	}

	if err := e.runs.TransitionRunning(ctx, run.ID); err != nil {
		return fmt.Errorf("transition compile run to running: %w", err)
	}

	sources, err := e.sources.ListEnabled(ctx, job.TenantID)
	if err != nil {
		return e.fail(ctx, run.ID, nil, fmt.Errorf("list enabled sources: %w", err))
	}

	status := newEvidenceStatus()
	platforms := make([]models.Platform, 0, len(sources))
	for _, sc := range sources {
		platforms = append(platforms, sc.Platform)
		if err := e.processSource(ctx, job.TenantID, sc, status); err != nil {
			return e.fail(ctx, run.ID, status.toJSON(), fmt.Errorf("process source %s.%s: %w", sc.Platform, sc.Capability, err))
		}
	}

	bundleResult, err := e.bundler.Bundle(ctx, job.TenantID, platforms)
	if err != nil {
		return e.fail(ctx, run.ID, status.toJSON(), fmt.Errorf("bundle evidence: %w", err))
	}

	bundle := &models.EvidenceBundle{
		TenantID: job.TenantID,
		Criteria: map[string]any{"enabled_platforms": platforms},
		ItemIDs:  bundleResult.ItemIDs,
		Summary:  bundleReportJSON(bundleResult),
	}
	if err := e.bundles.Create(ctx, bundle); err != nil {
		return e.fail(ctx, run.ID, status.toJSON(), fmt.Errorf("persist evidence bundle: %w", err))
	}

	draft, qaReport, err := e.composer.Compose(ctx, job.TenantID, bundleResult, run.OnboardingSnap)
	if err != nil {
		return e.fail(ctx, run.ID, status.toJSON(), fmt.Errorf("compose draft: %w", err))
	}

	snapshotDoc := map[string]any{
		"draft":           draft,
		"qa_report":       qaReport,
		"bundle_summary":  bundle.Summary,
		"evidence_status": status.toJSON(),
	}
	snapshot := &models.Snapshot{
		TenantID:     job.TenantID,
		CompileRunID: run.ID,
		SnapshotJSON: snapshotDoc,
	}
	if err := e.snapshots.Create(ctx, snapshot); err != nil {
		return e.fail(ctx, run.ID, status.toJSON(), fmt.Errorf("persist snapshot: %w", err))
	}

	if err := e.runs.CompleteSucceeded(ctx, run.ID, bundle.ID, status.toJSON(), draft, qaReport); err != nil {
		return fmt.Errorf("complete compile run: %w", err)
	}

	return nil
}

func (e *Executor) fail(ctx context.Context, runID uuid.UUID, evidenceStatus map[string]any, cause error) error {
	if evidenceStatus == nil {
		evidenceStatus = map[string]any{}
	}
	if err := e.runs.Fail(ctx, runID, cause.Error(), evidenceStatus); err != nil {
		return fmt.Errorf("%w (also failed to record failure: %v)", cause, err)
	}
	return cause
}

// processSource implements spec.md §4.3 steps 1-2 for a single source.
func (e *Executor) processSource(ctx context.Context, tenantID uuid.UUID, sc *models.SourceConnection, status *evidenceStatus) error {
	sourceKey := fmt.Sprintf("%s.%s", sc.Platform, sc.Capability)

	decision, err := e.freshness.CheckFreshness(ctx, sc, false)
	if err != nil {
		return fmt.Errorf("check freshness: %w", err)
	}

	if !decision.ShouldRefresh {
		spec, err := e.actorSpecs.Resolve(sc.Platform, sc.Capability)
		if err != nil {
			return fmt.Errorf("resolve actor spec: %w", err)
		}
		created, updated, err := e.normalizer.NormalizeActorRun(ctx, decision.CachedRun.ID, spec.Cap)
		if err != nil {
			status.addFailed(sourceKey, string(decision.Reason), err.Error(), decision.CachedRun.ExternalRunID, string(decision.CachedRun.Status))
			return nil
		}
		var ageHours float64
		if decision.AgeHours != nil {
			ageHours = *decision.AgeHours
		}
		status.addReused(sourceKey, string(decision.Reason), ageHours, decision.CachedRun.ExternalRunID, created, updated)
		return nil
	}

	result, err := e.ingest.IngestSource(ctx, tenantID, sc)
	if err != nil {
		return fmt.Errorf("ingest source: %w", err)
	}
	if result.Skipped {
		status.addSkipped(sourceKey, "capability disabled")
		return nil
	}
	if !result.Success {
		status.addFailed(sourceKey, string(decision.Reason), result.Error, result.ApifyRunID, string(result.ApifyRunStatus))
		return nil
	}
	status.addRefreshed(sourceKey, string(decision.Reason), result.ApifyRunID, string(result.ApifyRunStatus),
		result.RawItemsCount, result.NormalizedCreated, result.NormalizedUpdated)
	return nil
}

func bundleReportJSON(r bundler.Result) map[string]any {
	groups := make([]map[string]any, 0, len(r.Report.Groups))
	for _, g := range r.Report.Groups {
		groups = append(groups, map[string]any{
			"platform":                  g.Platform,
			"content_type":              g.ContentType,
			"eligible_count":            g.EligibleCount,
			"selected_count":            g.SelectedCount,
			"cap":                       g.Cap,
			"excluded_collection_pages": g.ExcludedCollectionPages,
			"web_only_exception":        g.WebOnlyException,
		})
	}
	return map[string]any{
		"groups":                 groups,
		"transcript_items_with":  r.Report.TranscriptItemsWith,
		"transcript_items_total": r.Report.TranscriptItemsTotal,
		"transcript_coverage":    r.Report.TranscriptCoverage,
		"item_count":             len(r.ItemIDs),
	}
}
