package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/knoldrill/internal/domain"
)

// SaveResults replaces the stored results of a session.
func (db *DB) SaveResults(ctx context.Context, sessionID string, results []domain.Result) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin saving results for session %s: %w", sessionID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_results WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear results for session %s: %w", sessionID, err)
	}
	for _, r := range results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_results (session_id, item_id, correct, rating, answered_at)
			VALUES (?, ?, ?, ?, ?)
		`, sessionID, r.ItemID, r.Correct, r.Rating.String(), r.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert result for session %s: %w", sessionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results for session %s: %w", sessionID, err)
	}
	return nil
}

// Results returns the stored results of a session in answer order.
func (db *DB) Results(ctx context.Context, sessionID string) ([]domain.Result, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT item_id, correct, rating, answered_at
		FROM session_results WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		var (
			r      domain.Result
			rating string
		)
		if err := rows.Scan(&r.ItemID, &r.Correct, &rating, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		if r.Rating, err = domain.ParseRating(rating); err != nil {
			return nil, fmt.Errorf("failed to decode result rating: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
