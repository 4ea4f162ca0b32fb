package reviewdue

import (
	"math/rand"
	"sort"
	"time"
)

// Tiers is the result of classifying a deck at one instant. Cards that are
// not yet due appear in no tier.
type Tiers struct {
	New      []Card
	Learning []Card // Learning and Relearning, soonest due first.
	Review   []Card
}

// StartOfDay returns midnight of t in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Classify sorts cards into tiers. Learning cards are due when Due is at or
// before now; review cards are due when Due is at or before todayStart.
func Classify(cards []Card, now, todayStart time.Time) Tiers {
	var t Tiers
	for _, c := range cards {
		switch {
		case c.State == New:
			t.New = append(t.New, c)
		case c.State.InLearning():
			if c.Due != nil && !c.Due.After(now) {
				t.Learning = append(t.Learning, c)
			}
		case c.State == Review:
			if c.Due != nil && !c.Due.After(todayStart) {
				t.Review = append(t.Review, c)
			}
		}
	}
	sortByDue(t.Learning)
	return t
}

// Select applies the daily limits: new cards are capped and shuffled, review
// cards are capped, learning cards are never capped.
func Select(t Tiers, cfg Config, rng *rand.Rand) Tiers {
	out := Tiers{
		New:      append([]Card(nil), t.New[:min(max(cfg.NewCardsPerDay, 0), len(t.New))]...),
		Learning: append([]Card(nil), t.Learning...),
		Review:   append([]Card(nil), t.Review[:min(max(cfg.MaxReviewsPerDay, 0), len(t.Review))]...),
	}
	rng.Shuffle(len(out.New), func(i, j int) {
		out.New[i], out.New[j] = out.New[j], out.New[i]
	})
	return out
}

func sortByDue(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Due.Before(*cards[j].Due)
	})
}
