package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/brandbrain/compiler/pkg/models"
	"github.com/google/uuid"
)

// RawItemRepository persists RawItem rows.
type RawItemRepository struct {
	db *sql.DB
}

// NewRawItemRepository constructs a RawItemRepository.
func NewRawItemRepository(db *sql.DB) *RawItemRepository {
	return &RawItemRepository{db: db}
}

// ReplaceAll atomically deletes all existing raw items for actorRunID and
// bulk-inserts items with sequential item_index, within a single
// transaction. Running this twice with the same items is a fixed point
// (spec.md §8).
func (r *RawItemRepository) ReplaceAll(ctx context.Context, actorRunID uuid.UUID, items []map[string]any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace raw items: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM raw_items WHERE actor_run_id = $1`, actorRunID); err != nil {
		return fmt.Errorf("replace raw items: delete existing: %w", err)
	}

	const insertQ = `INSERT INTO raw_items (id, actor_run_id, item_index, payload) VALUES ($1, $2, $3, $4)`
	for i, payload := range items {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("replace raw items: encode item %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, insertQ, uuid.New(), actorRunID, i, raw); err != nil {
			return fmt.Errorf("replace raw items: insert item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace raw items: commit: %w", err)
	}
	return nil
}

// ListByRun loads up to limit raw items for an actor run, in ascending
// item_index order, as normalization requires.
func (r *RawItemRepository) ListByRun(ctx context.Context, actorRunID uuid.UUID, limit int) ([]*models.RawItem, error) {
	const q = `
		SELECT id, actor_run_id, item_index, payload
		FROM raw_items WHERE actor_run_id = $1
		ORDER BY item_index ASC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, actorRunID, limit)
	if err != nil {
		return nil, fmt.Errorf("list raw items: %w", err)
	}
	defer rows.Close()

	var out []*models.RawItem
	for rows.Next() {
		item := &models.RawItem{}
		var payload []byte
		if err := rows.Scan(&item.ID, &item.ActorRunID, &item.ItemIndex, &payload); err != nil {
			return nil, fmt.Errorf("scan raw item: %w", err)
		}
		item.Payload, err = unmarshalJSONBMap(payload)
		if err != nil {
			return nil, fmt.Errorf("decode raw item payload: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
