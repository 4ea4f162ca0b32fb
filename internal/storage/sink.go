package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conorfennell/knoldrill/internal/confidence"
	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/mastery"
	"github.com/conorfennell/knoldrill/internal/outbox"
	"github.com/conorfennell/knoldrill/internal/reviewdue"
)

var _ outbox.Sink = (*DB)(nil)

// Deliver stores an outbox record. Every kind is written as a complete
// replacement of what is stored under the record's key.
func (db *DB) Deliver(ctx context.Context, r outbox.Record) error {
	switch r.Kind {
	case outbox.KindConfidenceProgress:
		var p confidence.Progress
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return fmt.Errorf("failed to decode confidence progress %s: %w", r.Key, err)
		}
		return db.SaveConfidenceProgress(ctx, p)
	case outbox.KindMasteryProgress:
		var p mastery.Progress
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return fmt.Errorf("failed to decode mastery progress %s: %w", r.Key, err)
		}
		return db.SaveMasteryProgress(ctx, p)
	case outbox.KindReviewCards:
		var cards []reviewdue.Card
		if err := json.Unmarshal(r.Payload, &cards); err != nil {
			return fmt.Errorf("failed to decode review cards %s: %w", r.Key, err)
		}
		return db.SaveReviewCards(ctx, cards)
	case outbox.KindSessionResults:
		var results []domain.Result
		if err := json.Unmarshal(r.Payload, &results); err != nil {
			return fmt.Errorf("failed to decode results %s: %w", r.Key, err)
		}
		return db.SaveResults(ctx, r.Key, results)
	default:
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
}
