package normalize

import (
	"fmt"
	"time"

	"github.com/brandbrain/compiler/pkg/models"
)

// RegisterDefaultAdapters wires one Adapter per actor-id known to the
// ingestion registry (pkg/ingestion.NewRegistry). Each adapter maps that
// actor's raw dataset item shape onto the normalized payload contract
// (spec.md §4.4).
func RegisterDefaultAdapters(r *Registry) {
	r.Register("instagram-posts-scraper", socialPostAdapter(models.PlatformInstagram, "post"))
	r.Register("instagram-reels-scraper", socialPostAdapter(models.PlatformInstagram, "reel"))
	r.Register("linkedin-company-posts-scraper", socialPostAdapter(models.PlatformLinkedIn, "company_post"))
	r.Register("linkedin-profile-posts-scraper", linkedInProfilePostsAdapter())
	r.Register("tiktok-posts-scraper", socialPostAdapter(models.PlatformTikTok, "post"))
	r.Register("youtube-channel-videos-scraper", youTubeChannelVideosAdapter())
	r.Register("web-crawler", webPageAdapter())
}

func stringField(raw map[string]any, key string) string {
	v, _ := raw[key].(string)
	return v
}

func floatField(raw map[string]any, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func boolField(raw map[string]any, key string) bool {
	v, _ := raw[key].(bool)
	return v
}

func parsedTimeField(raw map[string]any, key string) *time.Time {
	s := stringField(raw, key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// socialPostAdapter builds an Adapter for the common engagement-metrics
// shape shared by the social platform scrapers: {id, url, caption,
// timestamp, likes, comments, shares}.
func socialPostAdapter(platform models.Platform, contentType string) Adapter {
	return func(raw map[string]any) (NormalizedPayload, error) {
		externalID := stringField(raw, "id")
		if externalID == "" {
			return NormalizedPayload{}, fmt.Errorf("%s item missing id", platform)
		}
		return NormalizedPayload{
			Platform:     platform,
			ContentType:  contentType,
			ExternalID:   &externalID,
			CanonicalURL: stringField(raw, "url"),
			PublishedAt:  parsedTimeField(raw, "timestamp"),
			Metrics: map[string]float64{
				"likes":    floatField(raw, "likes"),
				"comments": floatField(raw, "comments"),
				"shares":   floatField(raw, "shares"),
			},
			Text:  stringField(raw, "caption"),
			Flags: map[string]bool{},
		}, nil
	}
}

// linkedInProfilePostsAdapter is the feature-gated adapter for the
// unvalidated linkedin.profile_posts capability (spec.md §4.5's containment
// note). It shares the social-post shape but is only ever reachable when
// BRANDBRAIN_ENABLE_LINKEDIN_PROFILE_POSTS is set — enforced upstream by
// pkg/ingestion.Registry, not by this adapter.
func linkedInProfilePostsAdapter() Adapter {
	return socialPostAdapter(models.PlatformLinkedIn, "profile_post")
}

// youTubeChannelVideosAdapter maps {video_id, url, title, published_at,
// views, likes, comments, transcript?}.
func youTubeChannelVideosAdapter() Adapter {
	return func(raw map[string]any) (NormalizedPayload, error) {
		externalID := stringField(raw, "video_id")
		if externalID == "" {
			return NormalizedPayload{}, fmt.Errorf("youtube video item missing video_id")
		}
		return NormalizedPayload{
			Platform:     models.PlatformYouTube,
			ContentType:  "video",
			ExternalID:   &externalID,
			CanonicalURL: stringField(raw, "url"),
			PublishedAt:  parsedTimeField(raw, "published_at"),
			Metrics: map[string]float64{
				"views":    floatField(raw, "views"),
				"likes":    floatField(raw, "likes"),
				"comments": floatField(raw, "comments"),
			},
			Text: stringField(raw, "title"),
			Flags: map[string]bool{
				"has_transcript": stringField(raw, "transcript") != "",
			},
		}, nil
	}
}

// webPageAdapter maps {url, title, text, crawled_at, is_collection_page}.
// Web pages have no external_id; canonical_url is the dedupe key (spec.md
// §3). Engagement metrics don't apply to web content (spec.md §4.5: web
// score is defined as zero).
func webPageAdapter() Adapter {
	return func(raw map[string]any) (NormalizedPayload, error) {
		url := stringField(raw, "url")
		if url == "" {
			return NormalizedPayload{}, fmt.Errorf("web page item missing url")
		}
		return NormalizedPayload{
			Platform:     models.PlatformWeb,
			ContentType:  "page",
			CanonicalURL: url,
			PublishedAt:  parsedTimeField(raw, "crawled_at"),
			Metrics:      map[string]float64{},
			Text:         stringField(raw, "text"),
			Flags: map[string]bool{
				"is_collection_page": boolField(raw, "is_collection_page"),
			},
		}, nil
	}
}
