package connection

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: min(Max, Base*2^attempt) plus additive
// jitter, never exceeding Max. With Jitter in [0, 1] the sequence is
// non-decreasing in attempt.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	rand func() float64 // [0, 1)
}

// NewBackoff creates a Backoff. Max below Base is raised to Base and Jitter
// is clamped to [0, 1].
func NewBackoff(base, maxDelay time.Duration, jitter float64) *Backoff {
	if base < 0 {
		base = 0
	}
	if maxDelay < base {
		maxDelay = base
	}
	jitter = min(max(jitter, 0), 1)
	return &Backoff{Base: base, Max: maxDelay, Jitter: jitter, rand: rand.Float64}
}

// Duration returns the delay before reconnect attempt number attempt
// (zero-based).
func (b *Backoff) Duration(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}

	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}

	if b.Jitter > 0 && b.rand != nil {
		d += time.Duration(float64(d) * b.Jitter * b.rand())
		if d > b.Max {
			d = b.Max
		}
	}
	return d
}
