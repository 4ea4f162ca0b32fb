package reviewdue

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// State is the learning stage of a card.
type State int

const (
	New        State = iota // Never studied.
	Learning                // Working through the learning steps.
	Relearning              // Lapsed, working through the lapse steps.
	Review                  // Graduated into day-based review.
)

var (
	stateNames  = [...]string{New: "new", Learning: "learning", Relearning: "relearning", Review: "review"}
	stateByName = map[string]State{
		"new":        New,
		"learning":   Learning,
		"relearning": Relearning,
		"review":     Review,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = State(0)
	_ json.Marshaler           = State(0)
	_ json.Unmarshaler         = (*State)(nil)
	_ encoding.TextMarshaler   = State(0)
	_ encoding.TextUnmarshaler = (*State)(nil)
)

func (s State) isValid() bool {
	return s >= New && s <= Review
}

// String returns the lowercase name of the state, or "State(n)" for invalid values.
func (s State) String() string {
	if s.isValid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// InLearning reports whether s is Learning or Relearning.
func (s State) InLearning() bool {
	return s == Learning || s == Relearning
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.isValid() {
		return nil, fmt.Errorf("knoldrill: invalid card state: %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, ok := stateByName[string(text)]
	if !ok {
		return fmt.Errorf("knoldrill: invalid card state: %q", text)
	}
	*s = v
	return nil
}

// MarshalJSON implements json.Marshaler. State serializes as a JSON string.
func (s State) MarshalJSON() ([]byte, error) {
	text, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("knoldrill: invalid card state: %s", data)
	}
	return s.UnmarshalText([]byte(str))
}
