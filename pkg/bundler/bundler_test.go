package bundler_test

import (
	"context"
	"testing"
	"time"

	"github.com/brandbrain/compiler/pkg/bundler"
	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNEIStore struct {
	byGroup   map[string][]*models.NormalizedEvidenceItem
	groups    []database.PlatformContentType
	hasNonWeb bool
}

func groupKey(platform models.Platform, contentType string) string {
	return string(platform) + "." + contentType
}

func (f *fakeNEIStore) ListCandidates(_ context.Context, _ uuid.UUID, platform models.Platform, contentType string, limit int) ([]*models.NormalizedEvidenceItem, error) {
	items := f.byGroup[groupKey(platform, contentType)]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeNEIStore) DistinctPlatformContentTypes(context.Context, uuid.UUID, []models.Platform) ([]database.PlatformContentType, error) {
	return f.groups, nil
}

func (f *fakeNEIStore) HasNonWeb(context.Context, uuid.UUID, []models.Platform) (bool, error) {
	return f.hasNonWeb, nil
}

func item(id string, publishedAt time.Time, likes float64) *models.NormalizedEvidenceItem {
	return &models.NormalizedEvidenceItem{
		ID:           uuid.MustParse(id),
		Platform:     models.PlatformInstagram,
		ContentType:  "post",
		CanonicalURL: "https://insta/" + id,
		PublishedAt:  &publishedAt,
		Metrics:      map[string]float64{"likes": likes},
		Flags:        map[string]bool{},
	}
}

func uuidN(n byte) string {
	var b [16]byte
	b[15] = n
	return uuid.UUID(b).String()
}

func TestBundle_SelectsRecentAndTopEngagement(t *testing.T) {
	now := time.Now()
	items := []*models.NormalizedEvidenceItem{
		item(uuidN(1), now, 1),
		item(uuidN(2), now.Add(-1*time.Hour), 2),
		item(uuidN(3), now.Add(-2*time.Hour), 100),
		item(uuidN(4), now.Add(-3*time.Hour), 50),
		item(uuidN(5), now.Add(-4*time.Hour), 10),
	}
	store := &fakeNEIStore{
		byGroup: map[string][]*models.NormalizedEvidenceItem{groupKey(models.PlatformInstagram, "post"): items},
		groups:  []database.PlatformContentType{{Platform: models.PlatformInstagram, ContentType: "post"}},
	}

	cfg := bundler.DefaultConfig()
	cfg.RecentM = 2
	cfg.TopEngagementN = 2
	b := bundler.NewBundler(store, cfg, nil)

	result, err := b.Bundle(context.Background(), uuid.New(), []models.Platform{models.PlatformInstagram})
	require.NoError(t, err)
	assert.Len(t, result.ItemIDs, 4)
	require.Len(t, result.Report.Groups, 1)
	assert.Equal(t, 4, result.Report.Groups[0].SelectedCount)
}

func TestBundle_UnknownCapFailsLoudly(t *testing.T) {
	store := &fakeNEIStore{
		groups: []database.PlatformContentType{{Platform: models.PlatformInstagram, ContentType: "unknown_type"}},
	}
	b := bundler.NewBundler(store, bundler.DefaultConfig(), nil)

	_, err := b.Bundle(context.Background(), uuid.New(), []models.Platform{models.PlatformInstagram})
	require.Error(t, err)
}

func TestBundle_WebOnlyExceptionWhenNoNonWeb(t *testing.T) {
	now := time.Now()
	webItem := &models.NormalizedEvidenceItem{
		ID:           uuid.New(),
		Platform:     models.PlatformWeb,
		ContentType:  "page",
		CanonicalURL: "https://acme.com/hub",
		PublishedAt:  &now,
		Flags:        map[string]bool{"is_collection_page": true},
	}
	store := &fakeNEIStore{
		byGroup:   map[string][]*models.NormalizedEvidenceItem{groupKey(models.PlatformWeb, "page"): {webItem}},
		groups:    []database.PlatformContentType{{Platform: models.PlatformWeb, ContentType: "page"}},
		hasNonWeb: false,
	}
	b := bundler.NewBundler(store, bundler.DefaultConfig(), nil)

	result, err := b.Bundle(context.Background(), uuid.New(), []models.Platform{models.PlatformWeb})
	require.NoError(t, err)
	assert.Len(t, result.ItemIDs, 1, "web-only exception keeps collection pages when no non-web evidence exists")
	assert.True(t, result.Report.Groups[0].WebOnlyException)
}

func TestBundle_ExcludesCollectionPagesWhenNonWebPresent(t *testing.T) {
	now := time.Now()
	webItem := &models.NormalizedEvidenceItem{
		ID:           uuid.New(),
		Platform:     models.PlatformWeb,
		ContentType:  "page",
		CanonicalURL: "https://acme.com/hub",
		PublishedAt:  &now,
		Flags:        map[string]bool{"is_collection_page": true},
	}
	store := &fakeNEIStore{
		byGroup:   map[string][]*models.NormalizedEvidenceItem{groupKey(models.PlatformWeb, "page"): {webItem}},
		groups:    []database.PlatformContentType{{Platform: models.PlatformWeb, ContentType: "page"}},
		hasNonWeb: true,
	}
	b := bundler.NewBundler(store, bundler.DefaultConfig(), nil)

	result, err := b.Bundle(context.Background(), uuid.New(), []models.Platform{models.PlatformWeb})
	require.NoError(t, err)
	assert.Empty(t, result.ItemIDs)
	assert.Equal(t, 1, result.Report.Groups[0].ExcludedCollectionPages)
}

func TestBundle_GlobalCapTruncatesAndResorts(t *testing.T) {
	now := time.Now()
	var items []*models.NormalizedEvidenceItem
	for i := 0; i < 10; i++ {
		items = append(items, item(uuidN(byte(i+1)), now.Add(-time.Duration(i)*time.Hour), float64(i)))
	}
	store := &fakeNEIStore{
		byGroup: map[string][]*models.NormalizedEvidenceItem{groupKey(models.PlatformInstagram, "post"): items},
		groups:  []database.PlatformContentType{{Platform: models.PlatformInstagram, ContentType: "post"}},
	}
	cfg := bundler.DefaultConfig()
	cfg.GlobalCap = 3
	cfg.RecentM = 5
	cfg.TopEngagementN = 5
	cfg.PerPlatformCaps[bundler.PlatformContentTypeKey{Platform: models.PlatformInstagram, ContentType: "post"}] = 10
	b := bundler.NewBundler(store, cfg, nil)

	result, err := b.Bundle(context.Background(), uuid.New(), []models.Platform{models.PlatformInstagram})
	require.NoError(t, err)
	assert.Len(t, result.ItemIDs, 3)
}

func TestDefaultScore_WebAlwaysZero(t *testing.T) {
	webItem := &models.NormalizedEvidenceItem{Platform: models.PlatformWeb, Metrics: map[string]float64{"likes": 1000}}
	assert.Equal(t, 0.0, bundler.DefaultScore(webItem))
}
