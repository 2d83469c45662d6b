package resilience

import (
	"math"
	"time"
)

// Schedule computes deterministic exponential backoff delays.
//
// Recovery loops need delays that strictly increase across attempts, so the
// schedule applies no jitter. Attempt numbering starts at zero: Delay(0)
// returns Initial, Delay(1) returns Initial*Factor, and so on.
type Schedule struct {
	// Initial is the delay for attempt zero.
	// Default: 5 seconds
	Initial time.Duration

	// Factor is the multiplier applied per attempt.
	// Default: 2.0
	Factor float64

	// Max caps the delay. Zero means uncapped.
	Max time.Duration
}

// NewSchedule creates a backoff schedule with defaults applied.
func NewSchedule(initial time.Duration, factor float64) Schedule {
	s := Schedule{Initial: initial, Factor: factor}
	return s.withDefaults()
}

func (s Schedule) withDefaults() Schedule {
	if s.Initial <= 0 {
		s.Initial = 5 * time.Second
	}
	if s.Factor <= 0 {
		s.Factor = 2.0
	}
	return s
}

// Delay returns the delay for the given zero-based attempt.
func (s Schedule) Delay(attempt int) time.Duration {
	s = s.withDefaults()

	if attempt < 0 {
		attempt = 0
	}

	multiplier := math.Pow(s.Factor, float64(attempt))
	delay := time.Duration(float64(s.Initial) * multiplier)

	// Guard against overflow from large attempt counts.
	if delay <= 0 {
		delay = math.MaxInt64
	}
	if s.Max > 0 && delay > s.Max {
		delay = s.Max
	}
	return delay
}
