package session

import (
	"time"

	"github.com/conorfennell/knoldrill/internal/domain"
)

// Recorder accumulates the answers given in one session.
type Recorder struct {
	results    []domain.Result
	streak     int
	bestStreak int
}

// Record appends an answer.
func (r *Recorder) Record(id domain.ItemID, rating domain.Rating, correct bool, at time.Time) domain.Result {
	res := domain.Result{ItemID: id, Correct: correct, Rating: rating, Timestamp: at}
	r.results = append(r.results, res)
	if correct {
		r.streak++
		r.bestStreak = max(r.bestStreak, r.streak)
	} else {
		r.streak = 0
	}
	return res
}

// Results returns a copy of the recorded answers in order.
func (r *Recorder) Results() []domain.Result {
	return append([]domain.Result(nil), r.results...)
}

// Summary aggregates the recorded answers.
type Summary struct {
	Answered      int     `json:"answered"`
	Correct       int     `json:"correct"`
	Incorrect     int     `json:"incorrect"`
	Accuracy      float64 `json:"accuracy"`
	CurrentStreak int     `json:"currentStreak"`
	BestStreak    int     `json:"bestStreak"`
}

// Summary returns the aggregate of the recorded answers.
func (r *Recorder) Summary() Summary {
	s := Summary{Answered: len(r.results), CurrentStreak: r.streak, BestStreak: r.bestStreak}
	for _, res := range r.results {
		if res.Correct {
			s.Correct++
		}
	}
	s.Incorrect = s.Answered - s.Correct
	if s.Answered > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Answered)
	}
	return s
}
