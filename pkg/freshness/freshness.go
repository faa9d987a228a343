// Package freshness implements the input-hash based short-circuit engine
// (spec.md §4.1): per-source refresh/reuse decisions against a TTL, and the
// tenant-wide input hash used to detect no-op compiles.
package freshness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/brandbrain/compiler/pkg/services"
	"github.com/google/uuid"
)

// Config holds the freshness engine's tunables.
type Config struct {
	// ActorTTL is how old a cached SUCCEEDED ActorRun may be before a
	// source is considered stale. Default 24h (BRANDBRAIN_ACTOR_TTL_HOURS).
	ActorTTL time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{ActorTTL: 24 * time.Hour}
}

// ActorRunLookup is the narrow read dependency freshness needs: the latest
// SUCCEEDED actor run for a source connection.
type ActorRunLookup interface {
	LatestSucceeded(ctx context.Context, sourceConnectionID uuid.UUID) (*models.ActorRun, error)
}

// Reason is the closed set of explanations CheckFreshness can return.
type Reason string

const (
	ReasonForceRefresh  Reason = "force_refresh"
	ReasonNoCachedRun   Reason = "no_cached_run"
	ReasonStale         Reason = "stale"
	ReasonFresh         Reason = "fresh"
)

// Decision is the result of check-freshness(source) (spec.md §4.1).
type Decision struct {
	ShouldRefresh bool
	CachedRun     *models.ActorRun
	Reason        Reason
	AgeHours      *float64
}

// Checker evaluates freshness for a tenant's source connections.
type Checker struct {
	runs   ActorRunLookup
	config Config
}

// NewChecker constructs a Checker.
func NewChecker(runs ActorRunLookup, config Config) *Checker {
	return &Checker{runs: runs, config: config}
}

// CheckFreshness decides whether sc needs a refresh. forceRefresh, when
// true, always yields ReasonForceRefresh regardless of cache state.
func (c *Checker) CheckFreshness(ctx context.Context, sc *models.SourceConnection, forceRefresh bool) (Decision, error) {
	if forceRefresh {
		return Decision{ShouldRefresh: true, Reason: ReasonForceRefresh}, nil
	}

	run, err := c.runs.LatestSucceeded(ctx, sc.ID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return Decision{ShouldRefresh: true, Reason: ReasonNoCachedRun}, nil
		}
		return Decision{}, fmt.Errorf("check freshness: %w", err)
	}

	age := time.Since(finishedAtOrStarted(run))
	ageHours := age.Hours()
	if age > c.config.ActorTTL {
		return Decision{ShouldRefresh: true, CachedRun: run, Reason: ReasonStale, AgeHours: &ageHours}, nil
	}
	return Decision{ShouldRefresh: false, CachedRun: run, Reason: ReasonFresh, AgeHours: &ageHours}, nil
}

func finishedAtOrStarted(run *models.ActorRun) time.Time {
	if run.FinishedAt != nil {
		return *run.FinishedAt
	}
	return run.StartedAt
}

// AnySourceStale reports whether any of the given enabled source
// connections would refresh under the current TTL (spec.md §4.1:
// any-source-stale).
func (c *Checker) AnySourceStale(ctx context.Context, sources []*models.SourceConnection) (bool, error) {
	for _, sc := range sources {
		d, err := c.CheckFreshness(ctx, sc, false)
		if err != nil {
			return false, err
		}
		if d.ShouldRefresh {
			return true, nil
		}
	}
	return false, nil
}

// ingestionSettingsKeys are the per-platform/capability settings keys that
// affect ingestion behavior and therefore participate in the input hash.
// Cosmetic settings keys are deliberately excluded (spec.md §4.1).
var ingestionSettingsKeys = []string{"extra_start_urls"}

// sourceProjection is the behavioral projection of a SourceConnection used
// by ComputeInputHash (spec.md §4.1 step 3).
type sourceProjection struct {
	Platform       string         `json:"platform"`
	Capability     string         `json:"capability"`
	Identifier     string         `json:"identifier"`
	SettingsSubset map[string]any `json:"settings_subset"`
}

// ComputeInputHash computes the 256-bit hex digest over the canonical JSON
// encoding of the tenant's current compile inputs (spec.md §4.1):
// onboarding answers, overrides document + sorted pinned paths, enabled
// source connections projected to their behavioral subset (sorted by
// platform/capability/identifier), and {prompt_version, model}. Missing
// onboarding or overrides is not an error — the hash is computed over the
// empty document for that component.
func ComputeInputHash(
	onboardingAnswers map[string]any,
	overridesDoc map[string]any,
	pinnedPaths []string,
	sources []*models.SourceConnection,
	promptVersion, model string,
) (string, error) {
	if onboardingAnswers == nil {
		onboardingAnswers = map[string]any{}
	}
	if overridesDoc == nil {
		overridesDoc = map[string]any{}
	}
	sortedPinned := append([]string{}, pinnedPaths...)
	sort.Strings(sortedPinned)

	projections := make([]sourceProjection, 0, len(sources))
	for _, sc := range sources {
		subset := map[string]any{}
		for _, key := range ingestionSettingsKeys {
			if v, ok := sc.Settings[key]; ok {
				subset[key] = v
			}
		}
		projections = append(projections, sourceProjection{
			Platform:       string(sc.Platform),
			Capability:     sc.Capability,
			Identifier:     sc.Identifier,
			SettingsSubset: subset,
		})
	}
	sort.Slice(projections, func(i, j int) bool {
		if projections[i].Platform != projections[j].Platform {
			return projections[i].Platform < projections[j].Platform
		}
		if projections[i].Capability != projections[j].Capability {
			return projections[i].Capability < projections[j].Capability
		}
		return projections[i].Identifier < projections[j].Identifier
	})

	components := []any{
		canonicalize(onboardingAnswers),
		map[string]any{
			"overrides_doc": canonicalize(overridesDoc),
			"pinned_paths":  sortedPinned,
		},
		projections,
		map[string]string{
			"prompt_version": promptVersion,
			"model":          model,
		},
	}

	encoded, err := canonicalJSON(components)
	if err != nil {
		return "", fmt.Errorf("compute input hash: %w", err)
	}

	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize recursively sorts map keys so the JSON encoding below never
// leaks Go's randomized map iteration order into the hash.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]orderedField, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, orderedField{Key: k, Value: canonicalize(val[k])})
		}
		return ordered
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}

// orderedField is a key/value pair that marshals as a two-element JSON
// array, avoiding Go's native map encoding (which would re-sort but also
// re-introduce ambiguity were a non-string key type ever used) while
// keeping the sort order explicit end to end.
type orderedField struct {
	Key   string
	Value any
}

func (f orderedField) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{f.Key, f.Value})
}

// canonicalJSON marshals v with no insignificant whitespace. encoding/json
// already omits it by default; the explicit name documents the invariant
// that callers must pre-sort map keys via canonicalize before calling this.
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
