package engine

import (
	"math"
	"math/rand"
	"time"
)

// Default retry policy values.
const (
	// DefaultMaxAttempts is the total attempt budget per task
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the backoff before the first retry
	DefaultBaseDelay = 5 * time.Second

	// DefaultMaxDelay caps the computed backoff
	DefaultMaxDelay = 30 * time.Second

	// DefaultMultiplier grows the backoff between retries
	DefaultMultiplier = 2.0

	// DefaultJitterFraction is the uniform random fraction added on top of
	// the computed delay, so workers never retry in lockstep
	DefaultJitterFraction = 0.3
)

// RetryPolicy computes the retry decision and backoff delay for failed
// attempts. The caller rotates its proxy session before every retry;
// retrying with the same identity after a failure is disallowed.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget (1-indexed)
	MaxAttempts int
	// BaseDelay is the backoff before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff before jitter
	MaxDelay time.Duration
	// Multiplier grows the backoff exponentially
	Multiplier float64
	// JitterFraction is the maximum random fraction added to the delay
	JitterFraction float64
}

// DefaultRetryPolicy returns the standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		Multiplier:     DefaultMultiplier,
		JitterFraction: DefaultJitterFraction,
	}
}

// ShouldRetry reports whether another attempt follows the given 1-indexed
// failed attempt.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// BaseDelayFor returns the backoff for the given failed attempt before
// jitter: min(BaseDelay * Multiplier^(attempt-1), MaxDelay). Non-decreasing
// in attempt.
func (p RetryPolicy) BaseDelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Delay returns the backoff for the given failed attempt, jitter included.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelayFor(attempt)
	jitter := time.Duration(rand.Float64() * p.JitterFraction * float64(base))
	return base + jitter
}
