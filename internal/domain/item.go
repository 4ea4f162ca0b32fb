package domain

import "time"

// ItemID identifies a learnable item. IDs are derived from item content, see package knol.
type ItemID string

// Item represents a single question-answer-context entry that can be studied.
type Item struct {
	ID          ItemID
	Question    string
	Answer      string
	Context     string
	ContainerID int64
	Tags        []string
}

// Queue is an ordered sequence of item ids. Order is the only signal of what comes next.
type Queue []ItemID

// Clone returns a copy that shares no backing array with q.
func (q Queue) Clone() Queue {
	if q == nil {
		return nil
	}
	out := make(Queue, len(q))
	copy(out, q)
	return out
}

// IndexOf returns the position of id in q, or -1.
func (q Queue) IndexOf(id ItemID) int {
	for i, v := range q {
		if v == id {
			return i
		}
	}
	return -1
}

// Resolver reports whether an item id still refers to a real item. Schedulers
// use it to drop ids whose items were deleted.
type Resolver interface {
	Has(id ItemID) bool
}

// Result records a single answer given during a session.
type Result struct {
	ItemID    ItemID    `json:"itemId"`
	Correct   bool      `json:"correct"`
	Rating    Rating    `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}
