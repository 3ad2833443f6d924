package queue

import (
	"math"
	"math/rand"
	"time"
)

// Backoff is the exponential fallback used when a job's retry policy has no
// explicit delay for an attempt.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Factor float64
	Jitter float64 // fraction, 0.25 = ±25%
}

// DefaultBackoff is 5s doubling up to 2m with ±25% jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: 5 * time.Second, Cap: 2 * time.Minute, Factor: 2, Jitter: 0.25}
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}
	d := float64(b.Base) * math.Pow(factor, float64(attempt-1))
	if b.Cap > 0 && d > float64(b.Cap) {
		d = float64(b.Cap)
	}
	if b.Jitter > 0 {
		d += d * b.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func (b *Broker) delayFor(j *Job, attempt int) time.Duration {
	if d, ok := j.Retry.Delay(attempt); ok {
		return d
	}
	return b.backoff.Delay(attempt)
}
