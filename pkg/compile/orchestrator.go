package compile

import (
	"context"
	"errors"
	"fmt"

	"github.com/brandbrain/compiler/pkg/freshness"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/services"
	"github.com/google/uuid"
)

// CompileRunStore is the narrow dependency on database.CompileRunRepository
// the orchestrator needs.
type CompileRunStore interface {
	Create(ctx context.Context, cr *models.CompileRun) error
	LatestForTenant(ctx context.Context, tenantID uuid.UUID) (*models.CompileRun, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.CompileRun, error)
	ListHistory(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]*models.CompileRun, error)
	CountForTenant(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// SnapshotStore is the narrow dependency on database.SnapshotRepository.
type SnapshotStore interface {
	Latest(ctx context.Context, tenantID uuid.UUID) (*models.Snapshot, error)
	ByCompileRun(ctx context.Context, compileRunID uuid.UUID) (*models.Snapshot, error)
}

// OverridesStore is the narrow dependency on database.OverridesRepository.
type OverridesStore interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Overrides, error)
	Merge(ctx context.Context, tenantID uuid.UUID, patch map[string]any, pinnedPaths []string) (*models.Overrides, error)
}

// SourceConnectionLister is the narrow dependency on
// database.SourceConnectionRepository the orchestrator needs beyond gating's
// EnabledSourceCounter.
type SourceConnectionLister interface {
	EnabledSourceCounter
	ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]*models.SourceConnection, error)
}

// JobEnqueuer is the narrow dependency on database.JobRepository the
// kickoff path needs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// TenantExistenceChecker is the narrow dependency on
// database.TenantRepository the kickoff path needs to reject a compile
// request for a missing or soft-deleted tenant (spec.md: "missing tenant"
// is a distinct NotFound case from missing run/snapshot) before any gating
// or DB writes happen.
type TenantExistenceChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// PromptSettings is the fixed (prompt_version, model) pair baked into this
// process, compared against a prior CompileRun's recorded settings as part
// of the short-circuit check (spec.md §4.1/§4.7).
type PromptSettings struct {
	PromptVersion string
	Model         string
}

// Orchestrator implements the compile kickoff path (spec.md §4.7): gating,
// the input-hash short-circuit, and CompileRun+Job creation.
type Orchestrator struct {
	tenants    TenantExistenceChecker
	onboarding OnboardingLookup
	sources    SourceConnectionLister
	overrides  OverridesStore
	runs       CompileRunStore
	snapshots  SnapshotStore
	jobs       JobEnqueuer
	freshness  *freshness.Checker
	prompt     PromptSettings
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	tenants TenantExistenceChecker,
	onboarding OnboardingLookup,
	sources SourceConnectionLister,
	overrides OverridesStore,
	runs CompileRunStore,
	snapshots SnapshotStore,
	jobs JobEnqueuer,
	checker *freshness.Checker,
	prompt PromptSettings,
) *Orchestrator {
	return &Orchestrator{
		tenants:    tenants,
		onboarding: onboarding,
		sources:    sources,
		overrides:  overrides,
		runs:       runs,
		snapshots:  snapshots,
		jobs:       jobs,
		freshness:  checker,
		prompt:     prompt,
	}
}

// KickoffStatus is the closed set of outcomes Kickoff can report.
type KickoffStatus string

const (
	KickoffEnqueued  KickoffStatus = "PENDING"
	KickoffUnchanged KickoffStatus = "UNCHANGED"
)

// KickoffResult is Kickoff's return shape (spec.md §6).
type KickoffResult struct {
	Status       KickoffStatus
	CompileRunID uuid.UUID
	Snapshot     *models.Snapshot
}

// Kickoff implements spec.md §4.7: gating, then the short-circuit check,
// then CompileRun+Job creation. It performs O(1) bounded DB calls and never
// calls an actor — the latency-sensitive contract of the kickoff path.
func (o *Orchestrator) Kickoff(ctx context.Context, tenantID uuid.UUID, forceRefresh bool) (KickoffResult, error) {
	exists, err := o.tenants.Exists(ctx, tenantID)
	if err != nil {
		return KickoffResult{}, fmt.Errorf("kickoff: check tenant exists: %w", err)
	}
	if !exists {
		return KickoffResult{}, NewNotFound("tenant not found")
	}

	gatingErrs, err := checkGating(ctx, o.onboarding, o.sources, tenantID)
	if err != nil {
		return KickoffResult{}, fmt.Errorf("kickoff: %w", err)
	}
	if len(gatingErrs) > 0 {
		return KickoffResult{}, NewGatingFailed(gatingErrs)
	}

	sources, err := o.sources.ListEnabled(ctx, tenantID)
	if err != nil {
		return KickoffResult{}, fmt.Errorf("kickoff: list enabled sources: %w", err)
	}

	if !forceRefresh {
		unchanged, snap, err := o.checkShortCircuit(ctx, tenantID, sources)
		if err != nil {
			return KickoffResult{}, fmt.Errorf("kickoff: short-circuit check: %w", err)
		}
		if unchanged {
			return KickoffResult{Status: KickoffUnchanged, Snapshot: snap}, nil
		}
	}

	onboarding, err := o.onboarding.Get(ctx, tenantID)
	var onboardingSnap map[string]any
	if err == nil {
		onboardingSnap = onboarding.Answers
	} else if !errors.Is(err, services.ErrNotFound) {
		return KickoffResult{}, fmt.Errorf("kickoff: load onboarding: %w", err)
	}

	overridesDoc, pinnedPaths, err := o.currentOverrides(ctx, tenantID)
	if err != nil {
		return KickoffResult{}, fmt.Errorf("kickoff: %w", err)
	}
	inputHash, err := freshness.ComputeInputHash(onboardingSnap, overridesDoc, pinnedPaths, sources, o.prompt.PromptVersion, o.prompt.Model)
	if err != nil {
		return KickoffResult{}, fmt.Errorf("kickoff: compute input hash: %w", err)
	}

	run := &models.CompileRun{
		TenantID:       tenantID,
		Status:         models.CompileRunPending,
		PromptVersion:  o.prompt.PromptVersion,
		Model:          o.prompt.Model,
		InputHash:      inputHash,
		OnboardingSnap: onboardingSnap,
		EvidenceStatus: map[string]any{},
	}
	if err := o.runs.Create(ctx, run); err != nil {
		return KickoffResult{}, fmt.Errorf("kickoff: create compile run: %w", err)
	}

	job := &models.Job{
		TenantID:     tenantID,
		CompileRunID: run.ID,
		JobType:      "compile",
		Params:       map[string]any{"force_refresh": forceRefresh},
	}
	if err := o.jobs.Enqueue(ctx, job); err != nil {
		return KickoffResult{}, fmt.Errorf("kickoff: enqueue job: %w", err)
	}

	return KickoffResult{Status: KickoffEnqueued, CompileRunID: run.ID}, nil
}

// checkShortCircuit implements spec.md §4.1/§4.7's short-circuit: all of
// (no source stale, prior prompt/model match current, input hash matches)
// must hold, and a prior snapshot must exist.
func (o *Orchestrator) checkShortCircuit(ctx context.Context, tenantID uuid.UUID, sources []*models.SourceConnection) (bool, *models.Snapshot, error) {
	snap, err := o.snapshots.Latest(ctx, tenantID)
	if errors.Is(err, services.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	priorRun, err := o.runs.Get(ctx, tenantID, snap.CompileRunID)
	if err != nil {
		return false, nil, fmt.Errorf("load prior compile run: %w", err)
	}
	if priorRun.PromptVersion != o.prompt.PromptVersion || priorRun.Model != o.prompt.Model {
		return false, nil, nil
	}

	stale, err := o.freshness.AnySourceStale(ctx, sources)
	if err != nil {
		return false, nil, fmt.Errorf("check source staleness: %w", err)
	}
	if stale {
		return false, nil, nil
	}

	onboarding, err := o.onboarding.Get(ctx, tenantID)
	var onboardingAnswers map[string]any
	if err == nil {
		onboardingAnswers = onboarding.Answers
	} else if !errors.Is(err, services.ErrNotFound) {
		return false, nil, fmt.Errorf("load onboarding: %w", err)
	}

	overridesDoc, pinnedPaths, err := o.currentOverrides(ctx, tenantID)
	if err != nil {
		return false, nil, err
	}

	currentHash, err := freshness.ComputeInputHash(onboardingAnswers, overridesDoc, pinnedPaths, sources, o.prompt.PromptVersion, o.prompt.Model)
	if err != nil {
		return false, nil, fmt.Errorf("compute input hash: %w", err)
	}
	if currentHash != priorRun.InputHash {
		return false, nil, nil
	}

	return true, snap, nil
}

func (o *Orchestrator) currentOverrides(ctx context.Context, tenantID uuid.UUID) (map[string]any, []string, error) {
	ov, err := o.overrides.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("load overrides: %w", err)
	}
	return ov.OverridesDoc, ov.PinnedPaths, nil
}
