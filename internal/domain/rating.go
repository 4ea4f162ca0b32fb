package domain

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Rating is the user's judgment of recall quality, ordered worst to best.
// New is the zero value and stands for "never rated".
type Rating int

const (
	New Rating = iota
	Again
	Hard
	Good
	Easy
	Perfect
	Superb
)

var (
	ratingNames  = [...]string{New: "new", Again: "again", Hard: "hard", Good: "good", Easy: "easy", Perfect: "perfect", Superb: "superb"}
	ratingByName = map[string]Rating{
		"new":     New,
		"again":   Again,
		"hard":    Hard,
		"good":    Good,
		"easy":    Easy,
		"perfect": Perfect,
		"superb":  Superb,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Rating(0)
	_ json.Marshaler           = Rating(0)
	_ json.Unmarshaler         = (*Rating)(nil)
	_ encoding.TextMarshaler   = Rating(0)
	_ encoding.TextUnmarshaler = (*Rating)(nil)
)

// Ratings lists every rating a user can give, worst first. New is not included.
func Ratings() []Rating {
	return []Rating{Again, Hard, Good, Easy, Perfect, Superb}
}

// String returns the lowercase name of the rating, or "Rating(n)" for unknown values.
func (r Rating) String() string {
	if r.known() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// IsValid reports whether r is a rating a user can give (Again through Superb).
func (r Rating) IsValid() bool {
	return r >= Again && r <= Superb
}

// Correct reports whether the rating counts as a successful recall.
func (r Rating) Correct() bool {
	return r.IsValid() && r != Again
}

func (r Rating) known() bool {
	return r >= New && r <= Superb
}

// ParseRating resolves a rating name, case-sensitive, as produced by String.
func ParseRating(s string) (Rating, error) {
	v, ok := ratingByName[s]
	if !ok {
		return New, fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
	return v, nil
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.known() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	v, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalJSON implements json.Marshaler. Rating serializes as a JSON string.
func (r Rating) MarshalJSON() ([]byte, error) {
	text, err := r.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRating, data)
	}
	return r.UnmarshalText([]byte(s))
}
