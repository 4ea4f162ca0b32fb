// Package reviewdue implements the review-due scheduler: the deck is split
// into new, learning and review tiers by due date, capped by daily limits,
// and one card is picked at a time with learning first, then review, then new.
package reviewdue

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/knoldrill/internal/domain"
)

// Clock returns the current time.
type Clock func() time.Time

// Grader computes a card's next scheduling state from a rating.
type Grader interface {
	Grade(card Card, rating domain.Rating, now time.Time) Card
}

// GraderFunc adapts a function to the Grader interface.
type GraderFunc func(card Card, rating domain.Rating, now time.Time) Card

// Grade calls f.
func (f GraderFunc) Grade(card Card, rating domain.Rating, now time.Time) Card {
	return f(card, rating, now)
}

// Counts is the number of cards still waiting in each tier, excluding the
// current card.
type Counts struct {
	New      int `json:"new"`
	Learning int `json:"learning"`
	Review   int `json:"review"`
}

// Option configures BuildSession.
type Option func(*Session)

// WithClock sets the clock. Defaults to time.Now.
func WithClock(c Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithGrader sets the grading strategy used by ApplyRating.
func WithGrader(g Grader) Option {
	return func(s *Session) {
		s.grader = g
	}
}

// WithRand sets the source used to shuffle new cards.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) {
		s.rng = rng
	}
}

// Session is one review-due study session. It is not safe for concurrent use.
type Session struct {
	cfg    Config
	clock  Clock
	grader Grader
	rng    *rand.Rand

	order []domain.ItemID
	cards map[domain.ItemID]Card

	newQ     []domain.ItemID
	learning []domain.ItemID
	review   []domain.ItemID
	current  domain.ItemID
	has      bool
	reviewed int
}

// BuildSession classifies cards, applies the daily limits and picks the
// first card. It returns domain.ErrNothingDue when no tier has a candidate.
func BuildSession(cards []Card, cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:   cfg,
		clock: time.Now,
		cards: make(map[domain.ItemID]Card, len(cards)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.clock().UnixNano()))
	}

	for _, c := range cards {
		if _, dup := s.cards[c.ItemID]; dup {
			continue
		}
		s.order = append(s.order, c.ItemID)
		s.cards[c.ItemID] = c.Clone()
	}

	now := s.clock()
	tiers := Select(Classify(s.Cards(), now, StartOfDay(now)), cfg, s.rng)
	s.newQ = ids(tiers.New)
	s.learning = ids(tiers.Learning)
	s.review = ids(tiers.Review)

	if !s.next(now) {
		return nil, domain.ErrNothingDue
	}
	return s, nil
}

// Current returns the card being shown.
func (s *Session) Current() (Card, bool) {
	if !s.has {
		return Card{}, false
	}
	return s.cards[s.current].Clone(), true
}

// Finished reports whether every selected card has been answered.
func (s *Session) Finished() bool {
	return !s.has
}

// Counts returns how many cards are waiting in each tier.
func (s *Session) Counts() Counts {
	return Counts{New: len(s.newQ), Learning: len(s.learning), Review: len(s.review)}
}

// Reviewed returns how many ratings were applied.
func (s *Session) Reviewed() int {
	return s.reviewed
}

// ApplyRating grades the current card and picks the next one. A graded card
// still in learning and due before the end of today goes back into the
// learning tier. It returns the graded card.
func (s *Session) ApplyRating(r domain.Rating) (Card, error) {
	if !r.IsValid() {
		return Card{}, fmt.Errorf("%w: %v", domain.ErrInvalidRating, r)
	}
	if !s.has {
		return Card{}, domain.ErrSessionFinished
	}
	if s.grader == nil {
		return Card{}, domain.ErrNoGrader
	}

	now := s.clock()
	graded := s.grader.Grade(s.cards[s.current].Clone(), r, now)
	graded.ItemID = s.current
	s.cards[s.current] = graded
	s.reviewed++

	endOfDay := StartOfDay(now).AddDate(0, 0, 1)
	if graded.State.InLearning() && graded.Due != nil && graded.Due.Before(endOfDay) {
		s.requeueLearning(graded)
	}

	s.next(now)
	return graded.Clone(), nil
}

// Heal drops the cards of items r cannot resolve from the session and
// returns how many were removed. A dropped current card is replaced by the
// next one. Healing is idempotent.
func (s *Session) Heal(r domain.Resolver) int {
	keep := func(id domain.ItemID, _ int) bool { return r.Has(id) }
	before := len(s.order)
	s.order = lo.Filter(s.order, keep)
	for id := range s.cards {
		if !r.Has(id) {
			delete(s.cards, id)
		}
	}
	s.newQ = lo.Filter(s.newQ, keep)
	s.learning = lo.Filter(s.learning, keep)
	s.review = lo.Filter(s.review, keep)
	if s.has && !r.Has(s.current) {
		s.next(s.clock())
	}
	return before - len(s.order)
}

// Cards returns every card of the session in input order, with the graded
// state of the cards answered so far.
func (s *Session) Cards() []Card {
	out := make([]Card, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.cards[id].Clone())
	}
	return out
}

// Snapshot returns the complete card set to persist.
func (s *Session) Snapshot() []Card {
	return s.Cards()
}

// next pops the following card: a due learning card, else a review card,
// else a new card. When only learning cards remain and none is due yet, the
// soonest one is shown early.
func (s *Session) next(now time.Time) bool {
	switch {
	case len(s.learning) > 0 && !s.cards[s.learning[0]].Due.After(now):
		s.current, s.learning = s.learning[0], s.learning[1:]
	case len(s.review) > 0:
		s.current, s.review = s.review[0], s.review[1:]
	case len(s.newQ) > 0:
		s.current, s.newQ = s.newQ[0], s.newQ[1:]
	case len(s.learning) > 0:
		s.current, s.learning = s.learning[0], s.learning[1:]
	default:
		s.current, s.has = "", false
		return false
	}
	s.has = true
	return true
}

func (s *Session) requeueLearning(c Card) {
	i := 0
	for i < len(s.learning) && !s.cards[s.learning[i]].Due.After(*c.Due) {
		i++
	}
	s.learning = append(s.learning, "")
	copy(s.learning[i+1:], s.learning[i:])
	s.learning[i] = c.ItemID
}

func ids(cards []Card) []domain.ItemID {
	return lo.Map(cards, func(c Card, _ int) domain.ItemID {
		return c.ItemID
	})
}
