package confidence

import "github.com/conorfennell/knoldrill/internal/domain"

// BuildQueue refreshes a progress queue against the currently eligible items.
//
// Queued ids that are no longer eligible are dropped. Eligible ids missing
// from the queue are appended in eligible order. When newLimit is set, the
// number of never-rated items in the result is capped at *newLimit; items
// already queued are never removed to honour the cap.
func BuildQueue(queue domain.Queue, states map[domain.ItemID]domain.Rating, eligible []domain.ItemID, newLimit *int) domain.Queue {
	allowed := make(map[domain.ItemID]struct{}, len(eligible))
	for _, id := range eligible {
		allowed[id] = struct{}{}
	}

	out := make(domain.Queue, 0, len(eligible))
	seen := make(map[domain.ItemID]struct{}, len(eligible))
	unrated := 0
	for _, id := range queue {
		if _, ok := allowed[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if states[id] == domain.New {
			unrated++
		}
	}

	for _, id := range eligible {
		if _, ok := seen[id]; ok {
			continue
		}
		if states[id] == domain.New {
			if newLimit != nil && unrated >= *newLimit {
				continue
			}
			unrated++
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
