package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conorfennell/knoldrill/internal/confidence"
	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/mastery"
	"github.com/conorfennell/knoldrill/internal/reviewdue"
)

// Each table below holds whole JSON records. A save replaces the record;
// nothing is merged.
const (
	tableConfidence    = "confidence_progress"
	tableMastery       = "mastery_progress"
	tableReviewConfigs = "review_configs"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) putRecord(ctx context.Context, ex execer, table, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", table, id, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO `+table+` (id, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at
	`, id, string(data), db.now())
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", table, id, err)
	}
	return nil
}

// getRecord decodes the record into v and reports whether it was found.
func (db *DB) getRecord(ctx context.Context, table, id string, v any) (bool, error) {
	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT record FROM `+table+` WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s %s: %w", table, id, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("failed to decode %s %s: %w", table, id, err)
	}
	return true, nil
}

// SaveConfidenceProgress replaces the stored confidence progress record.
func (db *DB) SaveConfidenceProgress(ctx context.Context, p confidence.Progress) error {
	return db.putRecord(ctx, db.conn, tableConfidence, p.ID, p)
}

// LoadConfidenceProgress returns the confidence progress record, or nil when none exists.
func (db *DB) LoadConfidenceProgress(ctx context.Context, id string) (*confidence.Progress, error) {
	var p confidence.Progress
	ok, err := db.getRecord(ctx, tableConfidence, id, &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// ListConfidenceProgress returns every confidence progress record ordered by id.
func (db *DB) ListConfidenceProgress(ctx context.Context) ([]confidence.Progress, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT record FROM confidence_progress ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list confidence progress: %w", err)
	}
	defer rows.Close()

	var out []confidence.Progress
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan confidence progress row: %w", err)
		}
		var p confidence.Progress
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("failed to decode confidence progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveMasteryProgress replaces the stored mastery progress record.
func (db *DB) SaveMasteryProgress(ctx context.Context, p mastery.Progress) error {
	return db.putRecord(ctx, db.conn, tableMastery, p.ID, p)
}

// LoadMasteryProgress returns the mastery progress record, or nil when none exists.
func (db *DB) LoadMasteryProgress(ctx context.Context, id string) (*mastery.Progress, error) {
	var p mastery.Progress
	ok, err := db.getRecord(ctx, tableMastery, id, &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// SaveReviewConfig replaces the review settings stored under id.
func (db *DB) SaveReviewConfig(ctx context.Context, id string, cfg reviewdue.Config) error {
	return db.putRecord(ctx, db.conn, tableReviewConfigs, id, cfg)
}

// LoadReviewConfig returns the review settings stored under id and whether they exist.
func (db *DB) LoadReviewConfig(ctx context.Context, id string) (reviewdue.Config, bool, error) {
	var cfg reviewdue.Config
	ok, err := db.getRecord(ctx, tableReviewConfigs, id, &cfg)
	return cfg, ok, err
}

// SaveReviewCards replaces the stored cards in one transaction.
func (db *DB) SaveReviewCards(ctx context.Context, cards []reviewdue.Card) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin saving review cards: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cards {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal review card %s: %w", c.ItemID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO review_cards (item_id, record, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(item_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at
		`, c.ItemID, string(data), db.now())
		if err != nil {
			return fmt.Errorf("failed to save review card %s: %w", c.ItemID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review cards: %w", err)
	}
	return nil
}

// ReviewCards returns the stored card of every item, in item order. Items
// without a stored card get a new one.
func (db *DB) ReviewCards(ctx context.Context, items []domain.Item) ([]reviewdue.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT item_id, record FROM review_cards`)
	if err != nil {
		return nil, fmt.Errorf("failed to load review cards: %w", err)
	}
	defer rows.Close()

	stored := make(map[domain.ItemID]reviewdue.Card)
	for rows.Next() {
		var (
			id   domain.ItemID
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan review card row: %w", err)
		}
		var c reviewdue.Card
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to decode review card %s: %w", id, err)
		}
		stored[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read review cards: %w", err)
	}

	cards := make([]reviewdue.Card, 0, len(items))
	for _, item := range items {
		c, ok := stored[item.ID]
		if !ok {
			c = reviewdue.NewCard(item)
		}
		c.ItemID = item.ID
		c.ContainerID = item.ContainerID
		cards = append(cards, c)
	}
	return cards, nil
}
