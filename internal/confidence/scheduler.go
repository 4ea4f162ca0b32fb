// Package confidence implements the confidence interval scheduler: a single
// ordered queue where every rating pushes the rated item forward by a
// distance that grows with the user's confidence.
package confidence

import (
	"fmt"
	"time"

	"github.com/conorfennell/knoldrill/internal/domain"
)

// Progress is the persisted record of a confidence session. It is always
// written whole: queue, card states and current index belong together and a
// partial record must never be merged into an older one.
type Progress struct {
	ID             string                          `json:"id"`
	Name           string                          `json:"name"`
	TableIDs       []int64                         `json:"tableIds"`
	RelationIDs    []int64                         `json:"relationIds"`
	Tags           []string                        `json:"tags"`
	CreatedAt      time.Time                       `json:"createdAt"`
	Queue          domain.Queue                    `json:"queue"`
	CurrentIndex   int                             `json:"currentIndex"`
	CardStates     map[domain.ItemID]domain.Rating `json:"cardStates"`
	IntervalConfig IntervalConfig                  `json:"intervalConfig,omitempty"`
	NewWordCount   *int                            `json:"newWordCount,omitempty"`
}

// Clone returns a deep copy of p.
func (p Progress) Clone() Progress {
	out := p
	out.TableIDs = append([]int64(nil), p.TableIDs...)
	out.RelationIDs = append([]int64(nil), p.RelationIDs...)
	out.Tags = append([]string(nil), p.Tags...)
	out.Queue = p.Queue.Clone()
	out.CardStates = cloneStates(p.CardStates)
	if p.IntervalConfig != nil {
		out.IntervalConfig = p.IntervalConfig.clone()
	}
	if p.NewWordCount != nil {
		n := *p.NewWordCount
		out.NewWordCount = &n
	}
	return out
}

func cloneStates(states map[domain.ItemID]domain.Rating) map[domain.ItemID]domain.Rating {
	out := make(map[domain.ItemID]domain.Rating, len(states))
	for k, v := range states {
		out[k] = v
	}
	return out
}

// Resolver reports whether an item id still refers to a real item.
type Resolver = domain.Resolver

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithResolver attaches the item resolver used for healing. The queue is
// healed immediately and again before every snapshot.
func WithResolver(r Resolver) Option {
	return func(s *Scheduler) {
		s.resolver = r
	}
}

// WithIntervals overrides the interval configuration stored in the progress
// record. The override is persisted with the next snapshot.
func WithIntervals(cfg IntervalConfig) Option {
	return func(s *Scheduler) {
		s.p.IntervalConfig = NewIntervalConfig(cfg)
	}
}

// Scheduler holds the state of one confidence session. It is not safe for
// concurrent use.
type Scheduler struct {
	p         Progress
	intervals IntervalConfig
	resolver  Resolver
}

// New restores a scheduler from a progress record. The record is copied.
func New(p Progress, opts ...Option) *Scheduler {
	s := &Scheduler{p: p.Clone()}
	if s.p.IntervalConfig != nil {
		s.p.IntervalConfig = NewIntervalConfig(s.p.IntervalConfig)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.intervals = s.p.IntervalConfig
	if s.intervals == nil {
		s.intervals = DefaultIntervals()
	}
	if s.resolver != nil {
		s.Heal(s.resolver)
	}
	s.p.CurrentIndex = clampIndex(s.p.CurrentIndex, len(s.p.Queue))
	return s
}

// Current returns the item at the current index.
func (s *Scheduler) Current() (domain.ItemID, bool) {
	if len(s.p.Queue) == 0 {
		return "", false
	}
	return s.p.Queue[s.p.CurrentIndex], true
}

// CurrentIndex returns the queue position of the current item.
func (s *Scheduler) CurrentIndex() int {
	return s.p.CurrentIndex
}

// Queue returns a copy of the queue.
func (s *Scheduler) Queue() domain.Queue {
	return s.p.Queue.Clone()
}

// Done reports whether the queue is empty, which means the session is complete.
func (s *Scheduler) Done() bool {
	return len(s.p.Queue) == 0
}

// RatingOf returns the last recorded rating of id, New if it was never rated.
func (s *Scheduler) RatingOf(id domain.ItemID) domain.Rating {
	return s.p.CardStates[id]
}

// ApplyRating records r for the current item and reinserts it according to
// the interval configuration. It returns the index the item moved to. The
// current index does not change.
func (s *Scheduler) ApplyRating(r domain.Rating) (int, error) {
	if !r.IsValid() {
		return -1, fmt.Errorf("%w: %v", domain.ErrInvalidRating, r)
	}
	id, ok := s.Current()
	if !ok {
		return -1, domain.ErrSessionFinished
	}
	if s.p.CardStates == nil {
		s.p.CardStates = make(map[domain.ItemID]domain.Rating)
	}
	s.p.CardStates[id] = r

	queue, insertIndex := Reinsert(s.p.Queue, s.p.CurrentIndex, s.intervals.Interval(r))
	s.p.Queue = queue
	return insertIndex, nil
}

// LearnedCount returns how many items have a recorded rating other than New.
func (s *Scheduler) LearnedCount() int {
	n := 0
	for _, r := range s.p.CardStates {
		if r != domain.New {
			n++
		}
	}
	return n
}

// Heal drops ids that no longer resolve and returns how many queue entries
// were removed.
func (s *Scheduler) Heal(r Resolver) int {
	before := len(s.p.Queue)
	s.p.Queue, s.p.CardStates, s.p.CurrentIndex = Heal(s.p.Queue, s.p.CardStates, s.p.CurrentIndex, r)
	return before - len(s.p.Queue)
}

// Snapshot returns the complete progress record to persist.
func (s *Scheduler) Snapshot() Progress {
	if s.resolver != nil {
		s.Heal(s.resolver)
	}
	return s.p.Clone()
}

// Heal removes every id that r cannot resolve from the queue and from the
// rating map. The current index follows the current item when entries before
// it are removed and is then clamped into [0, max(0, len(queue)-1)]. Healing
// is idempotent.
func Heal(queue domain.Queue, states map[domain.ItemID]domain.Rating, currentIndex int, r Resolver) (domain.Queue, map[domain.ItemID]domain.Rating, int) {
	healed := make(domain.Queue, 0, len(queue))
	index := currentIndex
	for i, id := range queue {
		if r.Has(id) {
			healed = append(healed, id)
			continue
		}
		if i < currentIndex {
			index--
		}
	}

	kept := make(map[domain.ItemID]domain.Rating, len(states))
	for id, rating := range states {
		if r.Has(id) {
			kept[id] = rating
		}
	}
	return healed, kept, clampIndex(index, len(healed))
}

func clampIndex(i, n int) int {
	return min(max(i, 0), max(n-1, 0))
}
