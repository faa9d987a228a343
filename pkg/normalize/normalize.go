// Package normalize implements normalize-actor-run (spec.md §4.4): mapping
// raw scraped items into NormalizedEvidenceItem rows through a registry of
// per-actor adapter functions.
package normalize

import (
	"context"
	"fmt"
	"time"

	"github.com/brandbrain/compiler/pkg/database"
	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
)

// AdapterMissingError is returned when no adapter is registered for an
// actor-id — either the actor was never onboarded or its capability is
// currently feature-gated (spec.md §4.4, §7's AdapterMissing error kind).
type AdapterMissingError struct {
	ActorID string
}

func (e *AdapterMissingError) Error() string {
	return fmt.Sprintf("no normalization adapter registered for actor %q", e.ActorID)
}

// Adapter maps one raw item payload into a normalized payload. Implementations
// are pure functions of the raw payload; they must not reach into the
// database or network.
type Adapter func(raw map[string]any) (NormalizedPayload, error)

// NormalizedPayload is the adapter's output shape (spec.md §4.4):
// {platform, content_type, external_id?, canonical_url, published_at,
// metrics, text, flags}.
type NormalizedPayload struct {
	Platform     models.Platform
	ContentType  string
	ExternalID   *string
	CanonicalURL string
	PublishedAt  *time.Time
	Metrics      map[string]float64
	Text         string
	Flags        map[string]bool
}

// ActorRunLookup is the narrow dependency normalize-actor-run needs to learn
// which actor produced a run and which tenant it belongs to.
type ActorRunLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.ActorRun, error)
}

// RawItemLister is the narrow dependency on the raw-item store.
type RawItemLister interface {
	ListByRun(ctx context.Context, actorRunID uuid.UUID, limit int) ([]*models.RawItem, error)
}

// NEIUpserter is the narrow dependency on the NEI store.
type NEIUpserter interface {
	Upsert(ctx context.Context, item *models.NormalizedEvidenceItem) (database.UpsertResult, error)
}

// Registry resolves an Adapter by actor-id.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register associates actorID with adapter. Intended to be called once per
// actor at process startup.
func (r *Registry) Register(actorID string, adapter Adapter) {
	r.adapters[actorID] = adapter
}

// Resolve returns the adapter for actorID, or *AdapterMissingError if none is
// registered.
func (r *Registry) Resolve(actorID string) (Adapter, error) {
	adapter, ok := r.adapters[actorID]
	if !ok {
		return nil, &AdapterMissingError{ActorID: actorID}
	}
	return adapter, nil
}

// Normalizer runs normalize-actor-run against a registry of adapters.
type Normalizer struct {
	actorRuns ActorRunLookup
	rawItems  RawItemLister
	neis      NEIUpserter
	registry  *Registry
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer(actorRuns ActorRunLookup, rawItems RawItemLister, neis NEIUpserter, registry *Registry) *Normalizer {
	return &Normalizer{actorRuns: actorRuns, rawItems: rawItems, neis: neis, registry: registry}
}

// NormalizeActorRun implements spec.md §4.4: load up to fetchLimit RawItem
// rows in ascending item_index order, resolve the adapter for the run's
// actor-id, map each item, and upsert. Items are processed strictly in index
// order so raw-refs merge deterministically across re-runs.
func (n *Normalizer) NormalizeActorRun(ctx context.Context, actorRunID uuid.UUID, fetchLimit int) (itemsCreated, itemsUpdated int, err error) {
	run, err := n.actorRuns.Get(ctx, actorRunID)
	if err != nil {
		return 0, 0, fmt.Errorf("normalize actor run: load run: %w", err)
	}

	adapter, err := n.registry.Resolve(run.ActorID)
	if err != nil {
		return 0, 0, err
	}

	rawItems, err := n.rawItems.ListByRun(ctx, actorRunID, fetchLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("normalize actor run: load raw items: %w", err)
	}

	for _, raw := range rawItems {
		payload, err := adapter(raw.Payload)
		if err != nil {
			return itemsCreated, itemsUpdated, fmt.Errorf("normalize actor run: adapt item %d: %w", raw.ItemIndex, err)
		}

		item := &models.NormalizedEvidenceItem{
			TenantID:     run.TenantID,
			Platform:     payload.Platform,
			ContentType:  payload.ContentType,
			ExternalID:   payload.ExternalID,
			CanonicalURL: payload.CanonicalURL,
			PublishedAt:  payload.PublishedAt,
			Metrics:      payload.Metrics,
			Text:         payload.Text,
			Flags:        payload.Flags,
			RawRefs: []models.RawRef{
				{ActorRunID: actorRunID, ItemIndex: raw.ItemIndex},
			},
		}

		result, err := n.neis.Upsert(ctx, item)
		if err != nil {
			return itemsCreated, itemsUpdated, fmt.Errorf("normalize actor run: upsert item %d: %w", raw.ItemIndex, err)
		}
		if result.Created {
			itemsCreated++
		} else {
			itemsUpdated++
		}
	}

	return itemsCreated, itemsUpdated, nil
}
