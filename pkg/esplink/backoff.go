package esplink

import (
	"math"
	"time"
)

// Backoff computes reconnect delays: Base * Multiplier^attempt, capped at Max.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay returns the wait before reconnect attempt number attempt (0-based).
// The sequence is non-decreasing and never exceeds Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := b.Base
	if base <= 0 {
		base = DefaultReconnectBaseDelay
	}
	max := b.Max
	if max < base {
		max = base
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(base) * math.Pow(mult, float64(attempt))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(max) {
		return max
	}
	return time.Duration(d)
}
