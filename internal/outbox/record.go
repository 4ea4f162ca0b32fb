package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names what a record carries.
type Kind string

const (
	KindConfidenceProgress Kind = "confidence_progress"
	KindMasteryProgress    Kind = "mastery_progress"
	KindReviewCards        Kind = "review_cards"
	KindSessionResults     Kind = "session_results"
)

// Record is one pending write. Payload is a complete snapshot, so a newer
// record with the same Kind and Key supersedes an older one.
type Record struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewRecord marshals v into a record.
func NewRecord(kind Kind, key string, v any, now time.Time) (Record, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal %s %s: %w", kind, key, err)
	}
	return Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
	}, nil
}

func (r Record) slot() string {
	return string(r.Kind) + "/" + r.Key
}
