package mastery

import (
	"errors"
	"reflect"
	"testing"

	"github.com/conorfennell/knoldrill/internal/domain"
)

func ids(s ...string) []domain.ItemID {
	out := make([]domain.ItemID, len(s))
	for i, v := range s {
		out[i] = domain.ItemID(v)
	}
	return out
}

func assertQueue(t *testing.T, s *Scheduler, want ...string) {
	t.Helper()
	got := s.Queue()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, domain.Queue(ids(want...))) {
		t.Errorf("Queue() = %v, want %v", got, want)
	}
}

func mustRate(t *testing.T, s *Scheduler, correct bool) Outcome {
	t.Helper()
	out, err := s.ApplyRating(correct)
	if err != nil {
		t.Fatalf("ApplyRating(%v): %v", correct, err)
	}
	return out
}

func TestNewStartsUnseen(t *testing.T) {
	s := New(ids("a", "b", "a", "c"))
	assertQueue(t, s, "a", "b", "c")
	for _, id := range ids("a", "b", "c") {
		if s.State(id) != Unseen {
			t.Errorf("State(%s) = %v, want unseen", id, s.State(id))
		}
	}
	if s.Total() != 3 {
		t.Errorf("Total() = %d, want 3", s.Total())
	}
}

func TestFirstCorrectDefersToBack(t *testing.T) {
	s := New(ids("a", "b", "c"))
	out := mustRate(t, s, true)
	if out.State != Pass1 || out.Mastered {
		t.Errorf("outcome = %+v, want Pass1 not mastered", out)
	}
	assertQueue(t, s, "b", "c", "a")
	if out.Position != 2 {
		t.Errorf("Position = %d, want 2", out.Position)
	}
}

func TestSecondCorrectMasters(t *testing.T) {
	s := New(ids("a"))
	out := mustRate(t, s, true)
	// Single item cycles without reordering.
	assertQueue(t, s, "a")
	if out.Finished {
		t.Fatal("session finished after one correct answer")
	}
	out = mustRate(t, s, true)
	if !out.Mastered || out.State != Pass2 || out.Position != -1 {
		t.Errorf("outcome = %+v, want mastered Pass2", out)
	}
	if !out.Finished || !s.Finished() {
		t.Error("session should be finished once the last item is mastered")
	}
	if got := s.Mastered(); !reflect.DeepEqual(got, ids("a")) {
		t.Errorf("Mastered() = %v, want [a]", got)
	}
	if _, err := s.ApplyRating(true); !errors.Is(err, domain.ErrSessionFinished) {
		t.Errorf("ApplyRating on empty queue err = %v, want ErrSessionFinished", err)
	}
}

func TestIncorrectReinsertion(t *testing.T) {
	tests := []struct {
		name     string
		distance int
		items    []string
		want     []string
		pos      int
	}{
		{"default soon", Soon, []string{"a", "b", "c", "d", "e"}, []string{"b", "c", "a", "d", "e"}, 2},
		{"immediately", Immediately, []string{"a", "b", "c"}, []string{"a", "b", "c"}, 0},
		{"later", Later, []string{"a", "b", "c", "d", "e", "f", "g"}, []string{"b", "c", "d", "e", "f", "a", "g"}, 5},
		{"clamped to end", Later, []string{"a", "b", "c"}, []string{"b", "c", "a"}, 2},
		{"single item", Soon, []string{"a"}, []string{"a"}, 0},
		{"negative distance", -4, []string{"a", "b"}, []string{"a", "b"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(ids(tt.items...), WithReinsertDistance(tt.distance))
			out := mustRate(t, s, false)
			if out.State != Fail {
				t.Errorf("State = %v, want fail", out.State)
			}
			if out.Position != tt.pos {
				t.Errorf("Position = %d, want %d", out.Position, tt.pos)
			}
			assertQueue(t, s, tt.want...)
		})
	}
}

func TestDefaultDistanceIsSoon(t *testing.T) {
	s := New(ids("a", "b", "c", "d"))
	mustRate(t, s, false)
	assertQueue(t, s, "b", "c", "a", "d")
}

func TestTwoPassLaw(t *testing.T) {
	s := New(ids("a", "b"), WithReinsertDistance(Immediately))

	mustRate(t, s, true)  // a → Pass1, queue b a
	mustRate(t, s, false) // b → Fail, stays in front
	mustRate(t, s, true)  // b → Pass1, queue a b
	out := mustRate(t, s, false)
	if out.ItemID != "a" || out.State != Fail {
		t.Fatalf("outcome = %+v, want a to fail", out)
	}
	// a lost its pass; it needs two more correct answers.
	out = mustRate(t, s, true)
	if out.ItemID != "a" || out.Mastered {
		t.Fatalf("outcome = %+v, want a at Pass1", out)
	}
	assertQueue(t, s, "b", "a")
	out = mustRate(t, s, true)
	if out.ItemID != "b" || !out.Mastered {
		t.Fatalf("outcome = %+v, want b mastered", out)
	}
	out = mustRate(t, s, true)
	if out.ItemID != "a" || !out.Mastered || !out.Finished {
		t.Fatalf("outcome = %+v, want a mastered and session finished", out)
	}
}

func TestEmptySessionIsNotFinished(t *testing.T) {
	s := New(nil)
	if s.Finished() {
		t.Error("an empty session never had work and should not report finished")
	}
	if _, ok := s.Current(); ok {
		t.Error("Current() on empty session should report false")
	}
}

func TestResumeAndSnapshot(t *testing.T) {
	items := ids("a", "b", "c", "d")
	s := New(items, WithResumeIndex(1), WithMastered(ids("c")))
	assertQueue(t, s, "b", "d")

	mustRate(t, s, true) // b Pass1, queue d b
	mustRate(t, s, true) // d Pass1, queue b d
	mustRate(t, s, true) // b mastered, queue d

	snap := s.Snapshot("p1")
	if snap.ResumeIndex != 3 {
		t.Errorf("ResumeIndex = %d, want 3", snap.ResumeIndex)
	}
	if !reflect.DeepEqual(snap.Mastered, ids("b", "c")) {
		t.Errorf("Mastered = %v, want [b c]", snap.Mastered)
	}
	if snap.MasteredCount != 2 {
		t.Errorf("MasteredCount = %d, want 2", snap.MasteredCount)
	}
	if !reflect.DeepEqual(snap.ItemIDs, items) {
		t.Errorf("ItemIDs = %v, want %v", snap.ItemIDs, items)
	}

	mustRate(t, s, true)
	if snap := s.Snapshot("p1"); snap.ResumeIndex != len(items) {
		t.Errorf("ResumeIndex after completion = %d, want %d", snap.ResumeIndex, len(items))
	}
}

func TestResumeIndexClamped(t *testing.T) {
	s := New(ids("a", "b"), WithResumeIndex(10))
	if s.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", s.Remaining())
	}
	s = New(ids("a", "b"), WithResumeIndex(-3))
	assertQueue(t, s, "a", "b")
}

type idSet map[domain.ItemID]bool

func (s idSet) Has(id domain.ItemID) bool {
	return s[id]
}

func TestHeal(t *testing.T) {
	s := New(ids("a", "b", "c", "d", "e"), WithResumeIndex(2), WithMastered(ids("a", "b")))
	assertQueue(t, s, "c", "d", "e")
	mustRate(t, s, true) // c Pass1, queue d e c
	mustRate(t, s, true) // d Pass1, queue e c d
	mustRate(t, s, true) // e Pass1, queue c d e
	mustRate(t, s, true) // c mastered, queue d e

	live := idSet{"b": true, "d": true}
	if n := s.Heal(live); n != 1 {
		t.Errorf("Heal() = %d, want 1", n)
	}
	assertQueue(t, s, "d")
	if s.State("e") != Unseen {
		t.Errorf("State(e) = %v, want no state for a deleted item", s.State("e"))
	}

	snap := s.Snapshot("p1")
	if !reflect.DeepEqual(snap.ItemIDs, ids("b", "d")) {
		t.Errorf("ItemIDs = %v, want [b d]", snap.ItemIDs)
	}
	if snap.ResumeIndex != 1 {
		t.Errorf("ResumeIndex = %d, want 1", snap.ResumeIndex)
	}
	if !reflect.DeepEqual(snap.Mastered, ids("b")) || snap.MasteredCount != 1 {
		t.Errorf("Mastered = %v (%d), want [b]", snap.Mastered, snap.MasteredCount)
	}

	if n := s.Heal(live); n != 0 {
		t.Errorf("second Heal() = %d, want 0", n)
	}
	mustRate(t, s, true)
	if !s.Finished() {
		t.Error("Finished() = false, want true")
	}
}
