package reviewdue

import (
	"encoding/json"
	"time"

	"github.com/conorfennell/knoldrill/internal/domain"
)

// DefaultEaseFactor is the ease a card starts with.
const DefaultEaseFactor = 2.5

// Card is the review-due scheduling state of one item.
type Card struct {
	ItemID      domain.ItemID `json:"rowId"`
	ContainerID int64         `json:"tableId"`
	RelationID  *int64        `json:"relationId,omitempty"`
	State       State         `json:"state"`
	Step        int           `json:"step"`
	Due         *time.Time    `json:"due"`      // nil until first graded.
	Interval    int           `json:"interval"` // days
	EaseFactor  float64       `json:"easeFactor"`
	Lapses      int           `json:"lapses"`
	Repetitions int           `json:"repetitions,omitempty"`
}

// NewCard returns an unstudied card for item.
func NewCard(item domain.Item) Card {
	return Card{
		ItemID:      item.ID,
		ContainerID: item.ContainerID,
		State:       New,
		EaseFactor:  DefaultEaseFactor,
	}
}

// Clone returns a deep copy of c.
func (c Card) Clone() Card {
	out := c
	if c.Due != nil {
		v := *c.Due
		out.Due = &v
	}
	if c.RelationID != nil {
		v := *c.RelationID
		out.RelationID = &v
	}
	return out
}

// UnmarshalJSON decodes a card. A record without a state is New, or Review
// when it already has repetitions. A missing ease factor defaults to 2.5.
func (c *Card) UnmarshalJSON(data []byte) error {
	type plain Card
	var raw struct {
		plain
		State *State `json:"state"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Card(raw.plain)
	switch {
	case raw.State != nil:
		c.State = *raw.State
	case c.Repetitions > 0:
		c.State = Review
	default:
		c.State = New
	}
	if c.EaseFactor == 0 {
		c.EaseFactor = DefaultEaseFactor
	}
	return nil
}
