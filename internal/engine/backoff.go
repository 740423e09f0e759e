package engine

import "time"

// Strategy computes the delay before retry attempt n (zero-based).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// constantBackoff waits the same delay between every attempt.
type constantBackoff struct {
	delay time.Duration
}

func (b constantBackoff) Delay(int) time.Duration { return b.delay }

// exponentialBackoff doubles the delay per attempt, capped at max.
type exponentialBackoff struct {
	base time.Duration
	max  time.Duration
}

func (b exponentialBackoff) Delay(attempt int) time.Duration {
	d := b.base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	return d
}

// NewStrategy builds the retry delay strategy for the given kind. Unknown
// kinds fall back to constant.
func NewStrategy(kind string, delay time.Duration) Strategy {
	if delay <= 0 {
		delay = time.Second
	}
	switch kind {
	case "exponential":
		return exponentialBackoff{base: delay, max: 30 * time.Second}
	default:
		return constantBackoff{delay: delay}
	}
}
