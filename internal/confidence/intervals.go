package confidence

import (
	"fmt"

	"github.com/conorfennell/knoldrill/internal/domain"
)

// IntervalConfig maps each rating to the number of queue slots a rated item
// is pushed forward.
type IntervalConfig map[domain.Rating]int

// Preset names an interval configuration.
type Preset string

const (
	PresetFibonacci Preset = "fibonacci"
	PresetDeepDrill Preset = "deep_drill"
	PresetLeitner   Preset = "leitner"
	PresetCustom    Preset = "custom"
)

var presets = map[Preset]IntervalConfig{
	PresetFibonacci: {domain.Again: 3, domain.Hard: 5, domain.Good: 8, domain.Easy: 13, domain.Perfect: 21, domain.Superb: 34},
	PresetDeepDrill: {domain.Again: 1, domain.Hard: 2, domain.Good: 3, domain.Easy: 5, domain.Perfect: 8, domain.Superb: 13},
	PresetLeitner:   {domain.Again: 5, domain.Hard: 10, domain.Good: 25, domain.Easy: 50, domain.Perfect: 100, domain.Superb: 200},
}

// DefaultIntervals returns a copy of the Fibonacci preset.
func DefaultIntervals() IntervalConfig {
	return presets[PresetFibonacci].clone()
}

// PresetIntervals returns a copy of the named preset.
func PresetIntervals(p Preset) (IntervalConfig, error) {
	cfg, ok := presets[p]
	if !ok {
		return nil, fmt.Errorf("confidence: unknown interval preset %q", p)
	}
	return cfg.clone(), nil
}

// NewIntervalConfig builds a custom configuration. Ratings missing from
// values take the Fibonacci default; values below 1 are raised to 1.
func NewIntervalConfig(values map[domain.Rating]int) IntervalConfig {
	cfg := DefaultIntervals()
	for r, v := range values {
		if !r.IsValid() {
			continue
		}
		cfg[r] = max(v, 1)
	}
	return cfg
}

// Interval returns the reinsertion distance for r. Configurations are
// normalized on construction; lookups on a nil or partial map fall back to
// the default preset.
func (c IntervalConfig) Interval(r domain.Rating) int {
	if v, ok := c[r]; ok && v >= 1 {
		return v
	}
	return presets[PresetFibonacci][r]
}

func (c IntervalConfig) clone() IntervalConfig {
	out := make(IntervalConfig, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
