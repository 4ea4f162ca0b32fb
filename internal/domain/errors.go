package domain

import "errors"

// Sentinel errors shared by the schedulers and the session layer.
// Use errors.Is to check: errors.Is(err, domain.ErrNothingDue)
var (
	ErrInvalidRating   = errors.New("knoldrill: invalid rating")
	ErrSessionFinished = errors.New("knoldrill: session already finished")
	ErrNothingDue      = errors.New("knoldrill: nothing due")
	ErrNothingToStudy  = errors.New("knoldrill: no eligible items")
	ErrNoGrader        = errors.New("knoldrill: no grader configured")
	ErrSessionNotFound = errors.New("knoldrill: session not found")
	ErrUnknownMode     = errors.New("knoldrill: unknown study mode")
)
