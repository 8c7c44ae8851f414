package fetch

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultBackoffBase is the wait before the first retry, before jitter.
	DefaultBackoffBase = 3 * time.Second
	// DefaultBackoffCap bounds every wait.
	DefaultBackoffCap = 60 * time.Second
)

// Backoff computes exponential waits with up to one second of jitter.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
	// Jitter returns a value in [0, 1). Defaults to rand.Float64.
	Jitter func() float64
}

// DefaultBackoff returns the 3s base, 60s cap schedule.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Cap: DefaultBackoffCap}
}

// Wait returns min(Base * 2^attempt + U(0,1)s, Cap) for a zero-based attempt.
func (b Backoff) Wait(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base, limit := b.Base, b.Cap
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if limit <= 0 {
		limit = DefaultBackoffCap
	}
	jitter := rand.Float64
	if b.Jitter != nil {
		jitter = b.Jitter
	}

	// Computed in float seconds so large attempts saturate at the cap
	// instead of overflowing.
	secs := base.Seconds()*math.Pow(2, float64(attempt)) + jitter()
	if secs >= limit.Seconds() {
		return limit
	}
	return time.Duration(secs * float64(time.Second))
}
