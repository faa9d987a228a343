package ingestion

import (
	"fmt"

	"github.com/brandbrain/compiler/pkg/models"
)

// ActorSpec describes how a (platform, capability) pair maps onto an
// upstream actor: its actor-id, the cap applied at every enforcement point
// (spec.md §4.3), and how to build the actor's input document.
type ActorSpec struct {
	ActorID    string
	Cap        int
	BuildInput func(sc *models.SourceConnection, cap int) map[string]any
}

func capabilityKey(platform models.Platform, capability string) string {
	return string(platform) + "." + capability
}

func defaultBuildInput(sc *models.SourceConnection, cap int) map[string]any {
	input := map[string]any{
		"identifier": sc.Identifier,
		"max_items":  cap,
	}
	for _, key := range []string{"extra_start_urls"} {
		if v, ok := sc.Settings[key]; ok {
			input[key] = v
		}
	}
	return input
}

// Registry resolves an ActorSpec for a (platform, capability) pair and
// tracks which capabilities are currently feature-gated off.
type Registry struct {
	specs           map[string]ActorSpec
	disabledCapKeys map[string]bool
}

// NewRegistry builds the default capability registry, applying
// enableLinkedInProfilePosts to gate the single feature-flagged capability
// (BRANDBRAIN_ENABLE_LINKEDIN_PROFILE_POSTS per spec.md §6).
func NewRegistry(enableLinkedInProfilePosts bool) *Registry {
	r := &Registry{
		specs:           map[string]ActorSpec{},
		disabledCapKeys: map[string]bool{},
	}

	r.register(models.PlatformInstagram, "posts", ActorSpec{ActorID: "instagram-posts-scraper", Cap: 100, BuildInput: defaultBuildInput})
	r.register(models.PlatformInstagram, "reels", ActorSpec{ActorID: "instagram-reels-scraper", Cap: 100, BuildInput: defaultBuildInput})
	r.register(models.PlatformLinkedIn, "company_posts", ActorSpec{ActorID: "linkedin-company-posts-scraper", Cap: 100, BuildInput: defaultBuildInput})
	r.register(models.PlatformLinkedIn, "profile_posts", ActorSpec{ActorID: "linkedin-profile-posts-scraper", Cap: 50, BuildInput: defaultBuildInput})
	r.register(models.PlatformTikTok, "posts", ActorSpec{ActorID: "tiktok-posts-scraper", Cap: 100, BuildInput: defaultBuildInput})
	r.register(models.PlatformYouTube, "channel_videos", ActorSpec{ActorID: "youtube-channel-videos-scraper", Cap: 100, BuildInput: defaultBuildInput})
	r.register(models.PlatformWeb, "crawl_pages", ActorSpec{ActorID: "web-crawler", Cap: 200, BuildInput: defaultBuildInput})

	if !enableLinkedInProfilePosts {
		r.disabledCapKeys[capabilityKey(models.PlatformLinkedIn, "profile_posts")] = true
	}
	return r
}

func (r *Registry) register(platform models.Platform, capability string, spec ActorSpec) {
	r.specs[capabilityKey(platform, capability)] = spec
}

// IsCapabilityEnabled reports whether (platform, capability) is currently
// active — it has a registered spec and is not feature-gated off.
func (r *Registry) IsCapabilityEnabled(platform models.Platform, capability string) bool {
	key := capabilityKey(platform, capability)
	if _, ok := r.specs[key]; !ok {
		return false
	}
	return !r.disabledCapKeys[key]
}

// Resolve returns the ActorSpec for (platform, capability). Unknown pairs
// fail loudly — there is no silent default actor.
func (r *Registry) Resolve(platform models.Platform, capability string) (ActorSpec, error) {
	spec, ok := r.specs[capabilityKey(platform, capability)]
	if !ok {
		return ActorSpec{}, fmt.Errorf("no actor spec registered for %s.%s", platform, capability)
	}
	return spec, nil
}
