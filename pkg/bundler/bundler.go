// Package bundler implements the deterministic evidence-selection algorithm
// (spec.md §4.5): per-(platform, content_type) recency + engagement
// selection, capped and re-sorted into a final deterministic order.
package bundler

import (
	"context"
	"fmt"
	"sort"

	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/metrics"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
)

// candidateWindowMultiple bounds how many candidates are fetched per
// (platform, content_type) group relative to the engagement window, so a
// pathologically large source never gets loaded wholesale into memory
// (spec.md §4.5, "memory discipline").
const candidateWindowMultiple = 20

// PlatformContentTypeKey identifies a per-platform cap entry.
type PlatformContentTypeKey struct {
	Platform    models.Platform
	ContentType string
}

// Config holds the bundler's tunables (spec.md §4.5).
type Config struct {
	RecentM                int
	TopEngagementN         int
	PerPlatformCaps        map[PlatformContentTypeKey]int
	GlobalCap              int
	ExcludeCollectionPages bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		RecentM:                3,
		TopEngagementN:         5,
		GlobalCap:              40,
		ExcludeCollectionPages: true,
		PerPlatformCaps: map[PlatformContentTypeKey]int{
			{Platform: models.PlatformInstagram, ContentType: "post"}:        15,
			{Platform: models.PlatformInstagram, ContentType: "reel"}:        15,
			{Platform: models.PlatformLinkedIn, ContentType: "company_post"}: 15,
			{Platform: models.PlatformLinkedIn, ContentType: "profile_post"}: 10,
			{Platform: models.PlatformTikTok, ContentType: "post"}:           15,
			{Platform: models.PlatformYouTube, ContentType: "video"}:         15,
			{Platform: models.PlatformWeb, ContentType: "page"}:              20,
		},
	}
}

// CapFor returns the configured cap for (platform, contentType). Unknown
// pairs fail loudly (spec.md §4.5 step 3c): there is no silent default cap.
func (c Config) CapFor(platform models.Platform, contentType string) (int, error) {
	n, ok := c.PerPlatformCaps[PlatformContentTypeKey{Platform: platform, ContentType: contentType}]
	if !ok {
		return 0, fmt.Errorf("no cap configured for %s.%s", platform, contentType)
	}
	return n, nil
}

// NEIStore is the narrow dependency on pkg/database.NEIRepository the
// bundler needs.
type NEIStore interface {
	ListCandidates(ctx context.Context, tenantID uuid.UUID, platform models.Platform, contentType string, limit int) ([]*models.NormalizedEvidenceItem, error)
	DistinctPlatformContentTypes(ctx context.Context, tenantID uuid.UUID, enabledPlatforms []models.Platform) ([]database.PlatformContentType, error)
	HasNonWeb(ctx context.Context, tenantID uuid.UUID, enabledPlatforms []models.Platform) (bool, error)
}

// ScoreFunc computes the engagement score of an NEI. Platform-specific;
// web always scores zero (spec.md §4.5).
type ScoreFunc func(item *models.NormalizedEvidenceItem) float64

// GroupReport is the per-(platform, content_type) entry in the feature
// report.
type GroupReport struct {
	Platform                models.Platform
	ContentType             string
	EligibleCount           int
	SelectedCount           int
	Cap                     int
	ExcludedCollectionPages int
	WebOnlyException        bool
}

// FeatureReport summarizes the bundling run (spec.md §4.5).
type FeatureReport struct {
	Groups               []GroupReport
	TranscriptItemsWith  int
	TranscriptItemsTotal int
	TranscriptCoverage   float64
}

// Result is the bundler's output: the selected NEI ids in final
// deterministic order, plus the feature report.
type Result struct {
	ItemIDs []uuid.UUID
	Report  FeatureReport
}

// Bundler selects and orders evidence for a compile run.
type Bundler struct {
	neis   NEIStore
	config Config
	score  ScoreFunc
}

// NewBundler constructs a Bundler. If score is nil, DefaultScore is used.
func NewBundler(neis NEIStore, config Config, score ScoreFunc) *Bundler {
	if score == nil {
		score = DefaultScore
	}
	return &Bundler{neis: neis, config: config, score: score}
}

type scoredItem struct {
	item  *models.NormalizedEvidenceItem
	score float64
}

// Bundle runs the full selection algorithm (spec.md §4.5 steps 1-5) over the
// tenant's NEIs restricted to enabledPlatforms.
func (b *Bundler) Bundle(ctx context.Context, tenantID uuid.UUID, enabledPlatforms []models.Platform) (Result, error) {
	groups, err := b.neis.DistinctPlatformContentTypes(ctx, tenantID, enabledPlatforms)
	if err != nil {
		return Result{}, fmt.Errorf("bundle: list distinct groups: %w", err)
	}

	hasNonWeb, err := b.neis.HasNonWeb(ctx, tenantID, enabledPlatforms)
	if err != nil {
		return Result{}, fmt.Errorf("bundle: has_non_web: %w", err)
	}

	var selected []scoredItem
	var reports []GroupReport
	var transcriptWith, transcriptTotal int

	windowLimit := (b.config.RecentM + b.config.TopEngagementN) * candidateWindowMultiple

	for _, g := range groups {
		capPC, err := b.config.CapFor(g.Platform, g.ContentType)
		if err != nil {
			return Result{}, fmt.Errorf("bundle: %w", err)
		}

		candidates, err := b.neis.ListCandidates(ctx, tenantID, g.Platform, g.ContentType, windowLimit)
		if err != nil {
			return Result{}, fmt.Errorf("bundle: list candidates for %s.%s: %w", g.Platform, g.ContentType, err)
		}

		webOnlyException := false
		excludedCollectionPages := 0
		if g.Platform == models.PlatformWeb && b.config.ExcludeCollectionPages {
			if hasNonWeb {
				filtered := candidates[:0]
				for _, item := range candidates {
					if item.HasFlag("is_collection_page") {
						excludedCollectionPages++
						continue
					}
					filtered = append(filtered, item)
				}
				candidates = filtered
			} else {
				webOnlyException = true
			}
		}

		for _, item := range candidates {
			if item.HasFlag("has_transcript") {
				transcriptWith++
			}
			transcriptTotal++
		}

		recent := append([]*models.NormalizedEvidenceItem{}, candidates...)
		sort.SliceStable(recent, func(i, j int) bool {
			return lessByRecency(recent[i], recent[j])
		})
		if len(recent) > b.config.RecentM {
			recent = recent[:b.config.RecentM]
		}

		recentSet := make(map[uuid.UUID]bool, len(recent))
		for _, item := range recent {
			recentSet[item.ID] = true
		}

		var remaining []scoredItem
		for _, item := range candidates {
			if recentSet[item.ID] {
				continue
			}
			remaining = append(remaining, scoredItem{item: item, score: b.score(item)})
		}
		sort.SliceStable(remaining, func(i, j int) bool {
			if remaining[i].score != remaining[j].score {
				return remaining[i].score > remaining[j].score
			}
			return lessByRecency(remaining[i].item, remaining[j].item)
		})
		if len(remaining) > b.config.TopEngagementN {
			remaining = remaining[:b.config.TopEngagementN]
		}

		groupSelection := make([]scoredItem, 0, len(recent)+len(remaining))
		for _, item := range recent {
			groupSelection = append(groupSelection, scoredItem{item: item, score: b.score(item)})
		}
		groupSelection = append(groupSelection, remaining...)

		limit := capPC
		if windowCap := b.config.RecentM + b.config.TopEngagementN; windowCap < limit {
			limit = windowCap
		}
		if len(groupSelection) > limit {
			groupSelection = groupSelection[:limit]
		}

		selected = append(selected, groupSelection...)
		reports = append(reports, GroupReport{
			Platform:                g.Platform,
			ContentType:             g.ContentType,
			EligibleCount:           len(candidates),
			SelectedCount:           len(groupSelection),
			Cap:                     capPC,
			ExcludedCollectionPages: excludedCollectionPages,
			WebOnlyException:        webOnlyException,
		})
	}

	if len(selected) > b.config.GlobalCap {
		sort.SliceStable(selected, func(i, j int) bool {
			if selected[i].score != selected[j].score {
				return selected[i].score > selected[j].score
			}
			return lessByRecency(selected[i].item, selected[j].item)
		})
		selected = selected[:b.config.GlobalCap]
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].item.Platform != selected[j].item.Platform {
			return selected[i].item.Platform < selected[j].item.Platform
		}
		if selected[i].score != selected[j].score {
			return selected[i].score > selected[j].score
		}
		return lessByRecency(selected[i].item, selected[j].item)
	})

	ids := make([]uuid.UUID, len(selected))
	for i, s := range selected {
		ids[i] = s.item.ID
	}

	coverage := 0.0
	if transcriptTotal > 0 {
		coverage = float64(transcriptWith) / float64(transcriptTotal)
	}

	metrics.BundleSize.Observe(float64(len(ids)))

	return Result{
		ItemIDs: ids,
		Report: FeatureReport{
			Groups:               reports,
			TranscriptItemsWith:  transcriptWith,
			TranscriptItemsTotal: transcriptTotal,
			TranscriptCoverage:   coverage,
		},
	}, nil
}

// lessByRecency orders by published_at DESC NULLS LAST, canonical_url ASC —
// the tiebreak used throughout spec.md §4.5.
func lessByRecency(a, b *models.NormalizedEvidenceItem) bool {
	switch {
	case a.PublishedAt == nil && b.PublishedAt == nil:
		return a.CanonicalURL < b.CanonicalURL
	case a.PublishedAt == nil:
		return false
	case b.PublishedAt == nil:
		return true
	case !a.PublishedAt.Equal(*b.PublishedAt):
		return a.PublishedAt.After(*b.PublishedAt)
	default:
		return a.CanonicalURL < b.CanonicalURL
	}
}

// DefaultScore is a platform-specific linear combination of metrics (spec.md
// §4.5: "engagement score is a pure function of the NEI"). Web always
// scores zero.
func DefaultScore(item *models.NormalizedEvidenceItem) float64 {
	if item.Platform == models.PlatformWeb {
		return 0
	}
	switch item.Platform {
	case models.PlatformYouTube:
		return item.Metrics["views"]*0.1 + item.Metrics["likes"] + item.Metrics["comments"]*2
	default:
		return item.Metrics["likes"] + item.Metrics["comments"]*2 + item.Metrics["shares"]*3
	}
}
