// Package grading provides the default review grading strategy: an
// Anki-style SM-2 variant driven by the deck's review settings.
package grading

import (
	"math"
	"time"

	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/reviewdue"
)

const (
	// MinEaseFactor is the lowest ease a card can drop to.
	MinEaseFactor = 1.3
	// HardMultiplier scales the interval on a Hard review.
	HardMultiplier = 1.2
	// DefaultMaxInterval caps every interval, in days.
	DefaultMaxInterval = 36500
)

type grade int

const (
	gradeAgain grade = iota
	gradeHard
	gradeGood
	gradeEasy
)

// gradeOf collapses the six ratings to the four answer buttons of SM-2.
func gradeOf(r domain.Rating) grade {
	switch r {
	case domain.Again:
		return gradeAgain
	case domain.Hard:
		return gradeHard
	case domain.Good:
		return gradeGood
	default:
		return gradeEasy
	}
}

// Anki grades review-due cards. Zero MaxInterval means DefaultMaxInterval.
type Anki struct {
	Config      reviewdue.Config
	MaxInterval int
}

// New returns an Anki grader for cfg.
func New(cfg reviewdue.Config) *Anki {
	return &Anki{Config: cfg}
}

var _ reviewdue.Grader = (*Anki)(nil)

// Grade returns the card's next state. The input card is not modified.
func (a *Anki) Grade(card reviewdue.Card, rating domain.Rating, now time.Time) reviewdue.Card {
	c := card.Clone()
	if c.EaseFactor == 0 {
		c.EaseFactor = reviewdue.DefaultEaseFactor
	}
	c.Repetitions++

	g := gradeOf(rating)
	switch c.State {
	case reviewdue.Review:
		return a.review(c, g, now)
	case reviewdue.Learning, reviewdue.Relearning:
		return a.learning(c, g, now)
	default:
		c.State = reviewdue.Learning
		c.Step = 0
		return a.learning(c, g, now)
	}
}

func (a *Anki) learning(c reviewdue.Card, g grade, now time.Time) reviewdue.Card {
	relearning := c.State == reviewdue.Relearning
	steps := a.Config.LearningDurations()
	if relearning {
		steps = a.Config.LapseDurations()
	}
	if len(steps) == 0 {
		if relearning {
			steps = []time.Duration{10 * time.Minute}
		} else {
			steps = []time.Duration{time.Minute}
		}
	}
	step := min(max(c.Step, 0), len(steps)-1)

	switch g {
	case gradeAgain:
		return stepTo(c, 0, now.Add(steps[0]))
	case gradeHard:
		delay := steps[step]
		if step == 0 && len(steps) > 1 {
			delay = (steps[0] + steps[1]) / 2
		}
		return stepTo(c, step, now.Add(delay))
	case gradeGood:
		if step+1 < len(steps) {
			return stepTo(c, step+1, now.Add(steps[step+1]))
		}
		if relearning {
			return a.graduate(c, max(c.Interval, 1), now)
		}
		return a.graduate(c, a.Config.GraduatingInterval, now)
	default:
		if relearning {
			return a.graduate(c, max(c.Interval+1, 1), now)
		}
		return a.graduate(c, a.Config.EasyInterval, now)
	}
}

func (a *Anki) review(c reviewdue.Card, g grade, now time.Time) reviewdue.Card {
	ivl := float64(c.Interval)
	modifier := a.Config.IntervalModifier
	if modifier <= 0 {
		modifier = 1
	}

	switch g {
	case gradeAgain:
		c.EaseFactor = math.Max(MinEaseFactor, c.EaseFactor-0.20)
		c.Lapses++
		c.Interval = min(max(1, c.Interval*a.Config.NewIntervalPercent/100), a.maxInterval())
		lapse := a.Config.LapseDurations()
		if len(lapse) == 0 {
			return a.graduate(c, c.Interval, now)
		}
		c.State = reviewdue.Relearning
		return stepTo(c, 0, now.Add(lapse[0]))
	case gradeHard:
		c.EaseFactor = math.Max(MinEaseFactor, c.EaseFactor-0.15)
		return a.graduate(c, max(c.Interval+1, int(ivl*HardMultiplier)), now)
	case gradeGood:
		return a.graduate(c, max(c.Interval+1, int(ivl*c.EaseFactor*modifier)), now)
	default:
		next := max(c.Interval+1, int(ivl*c.EaseFactor*a.Config.EasyBonus*modifier))
		c.EaseFactor += 0.15
		return a.graduate(c, next, now)
	}
}

func (a *Anki) graduate(c reviewdue.Card, days int, now time.Time) reviewdue.Card {
	days = min(max(days, 1), a.maxInterval())
	c.State = reviewdue.Review
	c.Step = 0
	c.Interval = days
	due := now.AddDate(0, 0, days)
	c.Due = &due
	return c
}

func (a *Anki) maxInterval() int {
	if a.MaxInterval > 0 {
		return a.MaxInterval
	}
	return DefaultMaxInterval
}

func stepTo(c reviewdue.Card, step int, due time.Time) reviewdue.Card {
	c.Step = step
	c.Due = &due
	return c
}
