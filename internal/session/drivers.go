package session

import (
	"fmt"
	"time"

	"github.com/conorfennell/knoldrill/internal/confidence"
	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/mastery"
	"github.com/conorfennell/knoldrill/internal/outbox"
	"github.com/conorfennell/knoldrill/internal/reviewdue"
)

// driver adapts one scheduler to the session contract.
type driver interface {
	current() (domain.ItemID, bool)
	// rate applies r to the current item and reports whether it counts as correct.
	rate(r domain.Rating) (bool, error)
	finished() bool
	// heal drops ids r cannot resolve and returns how many were removed.
	heal(r domain.Resolver) int
	stats() Stats
	snapshot(now time.Time) (outbox.Record, error)
}

// Stats describes how far a session has come. Fields that do not apply to
// the session's mode are zero.
type Stats struct {
	Remaining int               `json:"remaining"`
	Mastered  int               `json:"mastered,omitempty"`
	Learned   int               `json:"learned,omitempty"`
	Counts    *reviewdue.Counts `json:"counts,omitempty"`
}

type masteryDriver struct {
	progressID string
	s          *mastery.Scheduler
}

func (d *masteryDriver) current() (domain.ItemID, bool) {
	return d.s.Current()
}

func (d *masteryDriver) rate(r domain.Rating) (bool, error) {
	if !r.IsValid() {
		return false, fmt.Errorf("%w: %v", domain.ErrInvalidRating, r)
	}
	out, err := d.s.ApplyRating(r.Correct())
	if err != nil {
		return false, err
	}
	return out.Correct, nil
}

func (d *masteryDriver) finished() bool {
	return d.s.Finished()
}

func (d *masteryDriver) heal(r domain.Resolver) int {
	return d.s.Heal(r)
}

func (d *masteryDriver) stats() Stats {
	return Stats{Remaining: d.s.Remaining(), Mastered: len(d.s.Mastered())}
}

func (d *masteryDriver) snapshot(now time.Time) (outbox.Record, error) {
	return outbox.NewRecord(outbox.KindMasteryProgress, d.progressID, d.s.Snapshot(d.progressID), now)
}

type confidenceDriver struct {
	s *confidence.Scheduler
}

func (d *confidenceDriver) current() (domain.ItemID, bool) {
	return d.s.Current()
}

func (d *confidenceDriver) rate(r domain.Rating) (bool, error) {
	if _, err := d.s.ApplyRating(r); err != nil {
		return false, err
	}
	return r.Correct(), nil
}

// finished reports an empty queue. A confidence queue never empties through
// ratings, so these sessions normally end by quitting.
func (d *confidenceDriver) finished() bool {
	return d.s.Done()
}

func (d *confidenceDriver) heal(r domain.Resolver) int {
	return d.s.Heal(r)
}

func (d *confidenceDriver) stats() Stats {
	return Stats{Remaining: len(d.s.Queue()), Learned: d.s.LearnedCount()}
}

func (d *confidenceDriver) snapshot(now time.Time) (outbox.Record, error) {
	p := d.s.Snapshot()
	return outbox.NewRecord(outbox.KindConfidenceProgress, p.ID, p, now)
}

type dueDriver struct {
	deckID string
	s      *reviewdue.Session
}

func (d *dueDriver) current() (domain.ItemID, bool) {
	c, ok := d.s.Current()
	return c.ItemID, ok
}

func (d *dueDriver) rate(r domain.Rating) (bool, error) {
	if _, err := d.s.ApplyRating(r); err != nil {
		return false, err
	}
	return r.Correct(), nil
}

func (d *dueDriver) finished() bool {
	return d.s.Finished()
}

func (d *dueDriver) heal(r domain.Resolver) int {
	return d.s.Heal(r)
}

func (d *dueDriver) stats() Stats {
	counts := d.s.Counts()
	remaining := counts.New + counts.Learning + counts.Review
	if !d.s.Finished() {
		remaining++
	}
	return Stats{Remaining: remaining, Counts: &counts}
}

func (d *dueDriver) snapshot(now time.Time) (outbox.Record, error) {
	return outbox.NewRecord(outbox.KindReviewCards, d.deckID, d.s.Snapshot(), now)
}
