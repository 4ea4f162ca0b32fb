package confidence

import "github.com/conorfennell/knoldrill/internal/domain"

// Reinsert moves the item at currentIndex forward by interval slots and
// returns the new queue with the position the item landed at.
//
// The position is computed relative to the original index and clamped to the
// end of the shortened queue, so it never wraps: an item rated at the last
// position always stays last. The item that slides into the vacated slot
// becomes current, so the caller keeps currentIndex unchanged.
//
// An out-of-range currentIndex returns a copy of queue and -1.
func Reinsert(queue domain.Queue, currentIndex, interval int) (domain.Queue, int) {
	if currentIndex < 0 || currentIndex >= len(queue) {
		return queue.Clone(), -1
	}
	id := queue[currentIndex]

	rest := make(domain.Queue, 0, len(queue))
	rest = append(rest, queue[:currentIndex]...)
	rest = append(rest, queue[currentIndex+1:]...)

	insertIndex := min(currentIndex+max(interval, 0), len(rest))

	out := make(domain.Queue, 0, len(queue))
	out = append(out, rest[:insertIndex]...)
	out = append(out, id)
	out = append(out, rest[insertIndex:]...)
	return out, insertIndex
}
