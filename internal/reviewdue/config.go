package reviewdue

import "time"

// Config holds the per-deck review settings. Step lists are in minutes,
// intervals in days.
type Config struct {
	NewCardsPerDay     int     `json:"newCardsPerDay" koanf:"new_cards_per_day" validate:"gte=0"`
	LearningSteps      []int   `json:"learningSteps" koanf:"learning_steps" validate:"dive,gt=0"`
	GraduatingInterval int     `json:"graduatingInterval" koanf:"graduating_interval" validate:"gte=1"`
	EasyInterval       int     `json:"easyInterval" koanf:"easy_interval" validate:"gte=1"`
	MaxReviewsPerDay   int     `json:"maxReviewsPerDay" koanf:"max_reviews_per_day" validate:"gte=0"`
	EasyBonus          float64 `json:"easyBonus" koanf:"easy_bonus" validate:"gte=1"`
	IntervalModifier   float64 `json:"intervalModifier" koanf:"interval_modifier" validate:"gt=0"`
	LapseSteps         []int   `json:"lapseSteps" koanf:"lapse_steps" validate:"dive,gt=0"`
	NewIntervalPercent int     `json:"newIntervalPercent" koanf:"new_interval_percent" validate:"gte=0,lte=100"`
}

// DefaultConfig returns the stock deck settings.
func DefaultConfig() Config {
	return Config{
		NewCardsPerDay:     20,
		LearningSteps:      []int{1, 10},
		GraduatingInterval: 1,
		EasyInterval:       4,
		MaxReviewsPerDay:   200,
		EasyBonus:          1.3,
		IntervalModifier:   1.0,
		LapseSteps:         []int{10},
		NewIntervalPercent: 0,
	}
}

// LearningDurations returns the learning steps as durations.
func (c Config) LearningDurations() []time.Duration {
	return minutes(c.LearningSteps)
}

// LapseDurations returns the lapse steps as durations.
func (c Config) LapseDurations() []time.Duration {
	return minutes(c.LapseSteps)
}

func minutes(steps []int) []time.Duration {
	out := make([]time.Duration, len(steps))
	for i, m := range steps {
		out[i] = time.Duration(m) * time.Minute
	}
	return out
}
