package compile

import (
	"context"
	"errors"
	"fmt"

	"github.com/brandbrain/compiler/pkg/services"
	"github.com/google/uuid"
)

// maxHistoryPageSize bounds the history read path (spec.md §6: "max 50").
const maxHistoryPageSize = 50

// StatusResult is the status-dependent shape get-status returns (spec.md
// §4.7). Status carries through regardless of outcome; the other fields are
// populated only for the statuses that apply.
type StatusResult struct {
	CompileRunID   uuid.UUID
	Status         string
	EvidenceStatus map[string]any
	Error          string
	Snapshot       *SnapshotView
}

// SnapshotView is the subset of a Snapshot the read path exposes.
type SnapshotView struct {
	ID           uuid.UUID
	CreatedAt    string
	SnapshotJSON map[string]any
}

// Reader implements the bounded (≤3 queries) read path of spec.md §4.7:
// status, latest, history, and overrides. Tenant scoping is enforced by
// every underlying query, per spec.md's "sole data-isolation mechanism".
type Reader struct {
	runs      CompileRunStore
	snapshots SnapshotStore
	overrides OverridesStore
}

// NewReader constructs a Reader.
func NewReader(runs CompileRunStore, snapshots SnapshotStore, overrides OverridesStore) *Reader {
	return &Reader{runs: runs, snapshots: snapshots, overrides: overrides}
}

// GetStatus implements get-status(tenant, compile_run_id). A CompileRun
// owned by a different tenant surfaces as NotFound, never as a
// cross-tenant read (spec.md §4.7's data-isolation note).
func (r *Reader) GetStatus(ctx context.Context, tenantID, runID uuid.UUID) (*StatusResult, error) {
	run, err := r.runs.Get(ctx, tenantID, runID)
	if errors.Is(err, services.ErrNotFound) {
		return nil, NewNotFound("compile run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	result := &StatusResult{CompileRunID: run.ID, Status: string(run.Status)}
	switch run.Status {
	case "SUCCEEDED":
		result.EvidenceStatus = run.EvidenceStatus
		snap, err := r.snapshots.ByCompileRun(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("get status: load snapshot: %w", err)
		}
		result.Snapshot = &SnapshotView{
			ID:           snap.ID,
			CreatedAt:    snap.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			SnapshotJSON: snap.SnapshotJSON,
		}
	case "FAILED":
		result.EvidenceStatus = run.EvidenceStatus
		result.Error = run.Error
	}
	return result, nil
}

// LatestResult is the read shape for the latest-snapshot endpoint.
type LatestResult struct {
	Snapshot *SnapshotView
	RunID    uuid.UUID
}

// Latest implements latest(tenant) — a single query: the snapshot row
// carries its owning run id, which is exposed alongside it.
func (r *Reader) Latest(ctx context.Context, tenantID uuid.UUID) (*LatestResult, error) {
	snap, err := r.snapshots.Latest(ctx, tenantID)
	if errors.Is(err, services.ErrNotFound) {
		return nil, NewNotFound("no snapshot exists for this tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("get latest: %w", err)
	}
	return &LatestResult{
		RunID: snap.CompileRunID,
		Snapshot: &SnapshotView{
			ID:           snap.ID,
			CreatedAt:    snap.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			SnapshotJSON: snap.SnapshotJSON,
		},
	}, nil
}

// History implements history(tenant, page, page_size) — one count query,
// one page query (spec.md §6's pagination, capped at 50 per page).
func (r *Reader) History(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]*HistoryEntry, int, error) {
	if page < 1 {
		return nil, 0, NewValidation("page must be >= 1")
	}
	if pageSize < 1 || pageSize > maxHistoryPageSize {
		return nil, 0, NewValidation(fmt.Sprintf("page_size must be between 1 and %d", maxHistoryPageSize))
	}

	total, err := r.runs.CountForTenant(ctx, tenantID)
	if err != nil {
		return nil, 0, fmt.Errorf("history: count: %w", err)
	}

	runs, err := r.runs.ListHistory(ctx, tenantID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("history: list: %w", err)
	}

	entries := make([]*HistoryEntry, 0, len(runs))
	for _, run := range runs {
		entries = append(entries, &HistoryEntry{
			CompileRunID: run.ID,
			Status:       string(run.Status),
			StartedAt:    run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return entries, total, nil
}

// HistoryEntry is one row of the history listing.
type HistoryEntry struct {
	CompileRunID uuid.UUID
	Status       string
	StartedAt    string
}

// GetOverrides implements overrides read(tenant) — returns an empty
// document when none exist rather than NotFound (spec.md §6).
func (r *Reader) GetOverrides(ctx context.Context, tenantID uuid.UUID) (map[string]any, []string, error) {
	ov, err := r.overrides.Get(ctx, tenantID)
	if errors.Is(err, services.ErrNotFound) {
		return map[string]any{}, []string{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get overrides: %w", err)
	}
	return ov.OverridesDoc, ov.PinnedPaths, nil
}

// PatchOverrides implements overrides PATCH(tenant, patch, pinned_paths) —
// per-key null-delete merge of overrides_json, wholesale replace of
// pinned_paths (spec.md §4.7).
func (r *Reader) PatchOverrides(ctx context.Context, tenantID uuid.UUID, patch map[string]any, pinnedPaths []string) (map[string]any, []string, error) {
	ov, err := r.overrides.Merge(ctx, tenantID, patch, pinnedPaths)
	if err != nil {
		return nil, nil, fmt.Errorf("patch overrides: %w", err)
	}
	return ov.OverridesDoc, ov.PinnedPaths, nil
}
