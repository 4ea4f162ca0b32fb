package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conorfennell/knoldrill/internal/domain"
)

// UpsertItem inserts item or updates its content and source.
func (db *DB) UpsertItem(ctx context.Context, item domain.Item) error {
	tags, err := json.Marshal(nonNil(item.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags for item %s: %w", item.ID, err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO items (id, question, answer, context, tags, source_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			answer = excluded.answer,
			context = excluded.context,
			tags = excluded.tags,
			source_id = excluded.source_id
	`,
		item.ID,
		item.Question,
		item.Answer,
		item.Context,
		string(tags),
		item.ContainerID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.ID, err)
	}
	return nil
}

// FindItem retrieves an item by id. It returns nil when none exists.
func (db *DB) FindItem(ctx context.Context, id domain.ItemID) (*domain.Item, error) {
	items, err := db.queryItems(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find item %s: %w", id, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// GetItemsBySourceID retrieves all items of a source.
func (db *DB) GetItemsBySourceID(ctx context.Context, sourceID int64) ([]domain.Item, error) {
	items, err := db.queryItems(ctx, `WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items for source ID %d: %w", sourceID, err)
	}
	return items, nil
}

// AllItems retrieves every item ordered by source, then insertion order.
func (db *DB) AllItems(ctx context.Context) ([]domain.Item, error) {
	items, err := db.queryItems(ctx, ``)
	if err != nil {
		return nil, fmt.Errorf("failed to get all items: %w", err)
	}
	return items, nil
}

// DeleteItem removes an item and its review card.
func (db *DB) DeleteItem(ctx context.Context, id domain.ItemID) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete of item %s: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM review_cards WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete review card %s: %w", id, err)
	}
	return tx.Commit()
}

func (db *DB) queryItems(ctx context.Context, where string, args ...any) ([]domain.Item, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, question, answer, context, tags, source_id
		FROM items `+where+`
		ORDER BY source_id, rowid
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var (
			item domain.Item
			tags string
		)
		if err := rows.Scan(&item.ID, &item.Question, &item.Answer, &item.Context, &tags, &item.ContainerID); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
