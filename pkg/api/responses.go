package api

import (
	"github.com/brandbrain/compiler/pkg/queue"
)

// CompileResponse is returned by POST .../brandbrain/compile.
type CompileResponse struct {
	CompileRunID string            `json:"compile_run_id,omitempty"`
	Status       string            `json:"status"`
	PollURL      string            `json:"poll_url,omitempty"`
	Snapshot     *SnapshotResponse `json:"snapshot,omitempty"`
}

// StatusResponse is returned by GET .../compile/:run/status.
type StatusResponse struct {
	CompileRunID   string            `json:"compile_run_id"`
	Status         string            `json:"status"`
	EvidenceStatus map[string]any    `json:"evidence_status,omitempty"`
	Error          string            `json:"error,omitempty"`
	Snapshot       *SnapshotResponse `json:"snapshot,omitempty"`
}

// SnapshotResponse is the JSON shape of a Snapshot. The latest endpoint
// always returns the full document; its `?include=` query parameter does not
// select a subset.
type SnapshotResponse struct {
	ID           string         `json:"id"`
	CreatedAt    string         `json:"created_at"`
	SnapshotJSON map[string]any `json:"snapshot_json"`
}

// LatestResponse is returned by GET .../brandbrain/latest.
type LatestResponse struct {
	CompileRunID string            `json:"compile_run_id"`
	Snapshot     *SnapshotResponse `json:"snapshot"`
}

// HistoryEntryResponse is one row of GET .../brandbrain/history.
type HistoryEntryResponse struct {
	CompileRunID string `json:"compile_run_id"`
	Status       string `json:"status"`
	StartedAt    string `json:"started_at"`
}

// HistoryResponse is returned by GET .../brandbrain/history.
type HistoryResponse struct {
	Entries  []HistoryEntryResponse `json:"entries"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
	Total    int                    `json:"total"`
}

// OverridesResponse is returned by GET/PATCH .../brandbrain/overrides.
type OverridesResponse struct {
	OverridesJSON map[string]any `json:"overrides_json"`
	PinnedPaths   []string       `json:"pinned_paths"`
}

// ErrorsResponse is the 422 gating/compile-failure body (spec.md §6).
type ErrorsResponse struct {
	Errors []ErrorItem `json:"errors"`
}

// ErrorItem is one structured {code, message} gating or compile error.
type ErrorItem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	PendingJobs int               `json:"pending_jobs"`
	WorkerPool  *queue.PoolHealth `json:"worker_pool,omitempty"`
}
