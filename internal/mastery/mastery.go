// Package mastery implements the two-pass drill: every item must be answered
// correctly twice in a row before it leaves the session, and mistakes come
// back after a short, configurable distance.
package mastery

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/conorfennell/knoldrill/internal/domain"
)

// ItemState is the per-session progress of one item.
type ItemState int

const (
	Unseen ItemState = iota
	Fail
	Pass1
	Pass2
)

var stateNames = [...]string{Unseen: "unseen", Fail: "fail", Pass1: "pass1", Pass2: "pass2"}

func (s ItemState) String() string {
	if s >= Unseen && s <= Pass2 {
		return stateNames[s]
	}
	return fmt.Sprintf("ItemState(%d)", int(s))
}

// Reinsert distances for a missed item.
const (
	Immediately = 0
	Soon        = 2
	Later       = 5
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithReinsertDistance sets how many queue slots a missed item is pushed back.
// Negative values are treated as Immediately.
func WithReinsertDistance(d int) Option {
	return func(s *Scheduler) {
		s.distance = max(d, Immediately)
	}
}

// WithResumeIndex starts the session at position i of the item list.
func WithResumeIndex(i int) Option {
	return func(s *Scheduler) {
		s.resume = i
	}
}

// WithMastered marks items that were already mastered in an earlier session.
// They are kept out of the active queue.
func WithMastered(ids []domain.ItemID) Option {
	return func(s *Scheduler) {
		for _, id := range ids {
			s.carried[id] = struct{}{}
		}
	}
}

// Scheduler holds the state of one mastery session. It is not safe for
// concurrent use.
type Scheduler struct {
	items    []domain.ItemID
	queue    domain.Queue
	states   map[domain.ItemID]ItemState
	mastered []domain.ItemID
	carried  map[domain.ItemID]struct{}
	distance int
	resume   int
	original int
}

// New builds a session over items. Duplicate ids are dropped.
func New(items []domain.ItemID, opts ...Option) *Scheduler {
	s := &Scheduler{
		items:    lo.Uniq(items),
		carried:  make(map[domain.ItemID]struct{}),
		distance: Soon,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resume = min(max(s.resume, 0), len(s.items))

	s.states = make(map[domain.ItemID]ItemState, len(s.items))
	for _, id := range s.items {
		s.states[id] = Unseen
	}
	for _, id := range s.items[s.resume:] {
		if _, done := s.carried[id]; done {
			continue
		}
		s.queue = append(s.queue, id)
	}
	s.original = len(s.queue)
	return s
}

// Outcome describes the effect of one rating.
type Outcome struct {
	ItemID   domain.ItemID
	Correct  bool
	State    ItemState
	Mastered bool
	// Position is the queue index the item was moved to, or -1 once mastered.
	Position int
	// Finished is set when this rating emptied a non-empty session.
	Finished bool
}

// Current returns the item at the front of the queue.
func (s *Scheduler) Current() (domain.ItemID, bool) {
	if len(s.queue) == 0 {
		return "", false
	}
	return s.queue[0], true
}

// ApplyRating records an answer for the current item and reorders the queue.
func (s *Scheduler) ApplyRating(correct bool) (Outcome, error) {
	id, ok := s.Current()
	if !ok {
		return Outcome{}, domain.ErrSessionFinished
	}
	rest := s.queue[1:].Clone()
	out := Outcome{ItemID: id, Correct: correct}

	switch {
	case correct && s.states[id] == Pass1:
		s.states[id] = Pass2
		s.mastered = append(s.mastered, id)
		s.queue = rest
		out.Mastered = true
		out.Position = -1
	case correct:
		s.states[id] = Pass1
		s.queue = append(rest, id)
		out.Position = len(s.queue) - 1
	default:
		s.states[id] = Fail
		pos := min(s.distance, len(rest))
		s.queue = insertAt(rest, pos, id)
		out.Position = pos
	}

	out.State = s.states[id]
	out.Finished = s.Finished()
	return out, nil
}

func insertAt(q domain.Queue, pos int, id domain.ItemID) domain.Queue {
	out := make(domain.Queue, 0, len(q)+1)
	out = append(out, q[:pos]...)
	out = append(out, id)
	return append(out, q[pos:]...)
}

// Heal drops every id r cannot resolve from the item list, the queue and the
// mastered set, and returns how many queue entries were removed. The resume
// index moves back by the number of dropped items before it. Healing is
// idempotent.
func (s *Scheduler) Heal(r domain.Resolver) int {
	dropped := lo.CountBy(s.items[:s.resume], func(id domain.ItemID) bool { return !r.Has(id) })
	s.resume -= dropped
	s.items = lo.Filter(s.items, func(id domain.ItemID, _ int) bool { return r.Has(id) })

	before := len(s.queue)
	s.queue = lo.Filter(s.queue, func(id domain.ItemID, _ int) bool { return r.Has(id) })
	s.mastered = lo.Filter(s.mastered, func(id domain.ItemID, _ int) bool { return r.Has(id) })
	for id := range s.carried {
		if !r.Has(id) {
			delete(s.carried, id)
		}
	}
	for id := range s.states {
		if !r.Has(id) {
			delete(s.states, id)
		}
	}
	return before - len(s.queue)
}

// Finished reports whether a session that had work has run out of it.
func (s *Scheduler) Finished() bool {
	return len(s.queue) == 0 && s.original > 0
}

// State returns the session state of id.
func (s *Scheduler) State(id domain.ItemID) ItemState {
	return s.states[id]
}

// Queue returns a copy of the active queue.
func (s *Scheduler) Queue() domain.Queue {
	return s.queue.Clone()
}

// Remaining returns the number of items still in the active queue.
func (s *Scheduler) Remaining() int {
	return len(s.queue)
}

// Mastered returns the ids mastered during this session, in order.
func (s *Scheduler) Mastered() []domain.ItemID {
	out := make([]domain.ItemID, len(s.mastered))
	copy(out, s.mastered)
	return out
}

// Total returns how many items entered the active queue at session start.
func (s *Scheduler) Total() int {
	return s.original
}

// Progress is the persisted summary of a mastery session.
type Progress struct {
	ID            string          `json:"id"`
	ItemIDs       []domain.ItemID `json:"itemIds"`
	ResumeIndex   int             `json:"resumeIndex"`
	Mastered      []domain.ItemID `json:"mastered"`
	MasteredCount int             `json:"masteredCount"`
}

// Snapshot returns the complete state to persist. ResumeIndex points at the
// earliest item, in list order, that is still waiting in the queue; every
// session item before it is mastered.
func (s *Scheduler) Snapshot(id string) Progress {
	done := make(map[domain.ItemID]struct{}, len(s.carried)+len(s.mastered))
	for m := range s.carried {
		done[m] = struct{}{}
	}
	for _, m := range s.mastered {
		done[m] = struct{}{}
	}
	mastered := lo.Filter(s.items, func(item domain.ItemID, _ int) bool {
		_, ok := done[item]
		return ok
	})

	waiting := lo.SliceToMap(s.queue, func(item domain.ItemID) (domain.ItemID, struct{}) {
		return item, struct{}{}
	})
	resume := len(s.items)
	for i := s.resume; i < len(s.items); i++ {
		if _, ok := waiting[s.items[i]]; ok {
			resume = i
			break
		}
	}

	return Progress{
		ID:            id,
		ItemIDs:       append([]domain.ItemID(nil), s.items...),
		ResumeIndex:   resume,
		Mastered:      mastered,
		MasteredCount: len(mastered),
	}
}
