// Package models holds the plain-Go entity types persisted by pkg/database's
// repositories. There is no generated ORM layer (see DESIGN.md); these
// structs are the hand-written equivalent of what entc would have produced
// from ent/schema, scoped to BrandBrain's domain.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the scope root ("brand"). All downstream entities reference a
// tenant by ID.
type Tenant struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Name      string
	Slug      string
	DeletedAt *time.Time
	CreatedAt time.Time
}

// OnboardingTier is the completeness level of a tenant's onboarding answers.
type OnboardingTier int

const (
	TierZero OnboardingTier = 0
	TierOne  OnboardingTier = 1
	TierTwo  OnboardingTier = 2
)

// Onboarding holds one tenant's free-form answers, keyed by stable question
// identifier. Tier-0 answers are required for compile gating.
type Onboarding struct {
	TenantID  uuid.UUID
	Tier      OnboardingTier
	Answers   map[string]any
	UpdatedAt time.Time
}

// Platform is the closed set of content platforms a SourceConnection may
// target.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformWeb       Platform = "web"
)

// SourceConnection is an external content source enabled for a tenant.
// Unique by (tenant, platform, capability, identifier).
type SourceConnection struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Platform   Platform
	Capability string
	Identifier string
	IsEnabled  bool
	Settings   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Overrides is the one-per-tenant user customization document overlaying a
// compiled snapshot.
type Overrides struct {
	TenantID     uuid.UUID
	OverridesDoc map[string]any
	PinnedPaths  []string
	UpdatedAt    time.Time
}

// ActorRunStatus is the closed set of terminal/non-terminal statuses for an
// upstream scraping-actor invocation.
type ActorRunStatus string

const (
	ActorRunRunning  ActorRunStatus = "RUNNING"
	ActorRunSucceded ActorRunStatus = "SUCCEEDED"
	ActorRunFailed   ActorRunStatus = "FAILED"
	ActorRunTimedOut ActorRunStatus = "TIMED_OUT"
	ActorRunAborted  ActorRunStatus = "ABORTED"
)

// IsTerminal reports whether s is one of the four terminal statuses.
func (s ActorRunStatus) IsTerminal() bool {
	switch s {
	case ActorRunSucceded, ActorRunFailed, ActorRunTimedOut, ActorRunAborted:
		return true
	default:
		return false
	}
}

// ActorRun is one attempt to call the upstream actor for a SourceConnection.
type ActorRun struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	SourceConnectionID  uuid.UUID
	ActorID             string
	Input               map[string]any
	ExternalRunID       string
	ExternalDatasetID   string
	Status              ActorRunStatus
	StartedAt           time.Time
	FinishedAt          *time.Time
	ErrorSummary        string
	RawItemCount        int
}

// RawItem is one item fetched from an actor dataset, in fetch order.
type RawItem struct {
	ID         uuid.UUID
	ActorRunID uuid.UUID
	ItemIndex  int
	Payload    map[string]any
}

// RawRef points back from a NormalizedEvidenceItem to the raw item(s) it was
// derived from.
type RawRef struct {
	ActorRunID uuid.UUID `json:"actor_run_id"`
	ItemIndex  int       `json:"item_index"`
}

// NormalizedEvidenceItem (NEI) is canonical, deduplicated evidence.
type NormalizedEvidenceItem struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Platform      Platform
	ContentType   string
	ExternalID    *string
	CanonicalURL  string
	PublishedAt   *time.Time
	Metrics       map[string]float64
	Text          string
	Flags         map[string]bool
	RawRefs       []RawRef
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasFlag reports whether the named boolean flag is set.
func (n *NormalizedEvidenceItem) HasFlag(name string) bool {
	return n.Flags[name]
}

// EvidenceBundle is an immutable, materialized selection of NEIs.
type EvidenceBundle struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Criteria  map[string]any
	ItemIDs   []uuid.UUID
	Summary   map[string]any
	CreatedAt time.Time
}

// CompileRunStatus is the closed set of CompileRun states.
type CompileRunStatus string

const (
	CompileRunPending   CompileRunStatus = "PENDING"
	CompileRunRunning   CompileRunStatus = "RUNNING"
	CompileRunSucceeded CompileRunStatus = "SUCCEEDED"
	CompileRunFailed    CompileRunStatus = "FAILED"
)

// CompileRun is a single attempt to compile a snapshot for a tenant.
type CompileRun struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Status            CompileRunStatus
	PromptVersion     string
	Model             string
	InputHash         string
	OnboardingSnap    map[string]any
	BundleID          *uuid.UUID
	EvidenceStatus    map[string]any
	Draft             map[string]any
	QAReport          map[string]any
	Error             string
	StartedAt         time.Time
	FinishedAt        *time.Time
}

// Snapshot is a durable, immutable output of a successful CompileRun.
type Snapshot struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	CompileRunID     uuid.UUID
	SnapshotJSON     map[string]any
	DiffFromPrevious map[string]any
	CreatedAt        time.Time
}

// JobStatus is the closed set of Job states (spec.md §4.6).
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Job is a unit of work for a worker, claimed via an optimistic conditional
// UPDATE (spec.md §4.6) rather than SELECT ... FOR UPDATE.
type Job struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	CompileRunID  uuid.UUID
	JobType       string
	Status        JobStatus
	Attempts      int
	MaxAttempts   int
	LockedAt      *time.Time
	LockedBy      string
	AvailableAt   time.Time
	Params        map[string]any
	LastError     string
	CreatedAt     time.Time
	FinishedAt    *time.Time
}
