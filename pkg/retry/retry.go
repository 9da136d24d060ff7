// Package retry provides exponential backoff with jitter and a small
// retry loop for transient warehouse failures.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff computes delays between attempts: initial * multiplier^n,
// capped at max, with +/- jitter applied to spread out concurrent
// retries.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the relative spread (0.1 = +/-10%).
	Jitter float64
	// Rand supplies values in [0, 1) for jitter. Nil uses math/rand;
	// tests set a deterministic function.
	Rand func() float64
}

// DefaultBackoff returns the policy used for warehouse calls.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if max := float64(b.Max); d > max {
		d = max
	}
	if b.Jitter > 0 {
		random := b.Rand
		if random == nil {
			random = rand.Float64
		}
		// Map [0,1) to [-1,1) and scale by the jitter fraction.
		d *= 1.0 + b.Jitter*(random()-0.5)*2.0
	}
	return time.Duration(d)
}

// Policy drives an operation through bounded retries.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	Backoff     Backoff
	// Retryable decides whether a failure is worth another attempt.
	Retryable func(error) bool
	// OnRetry, if set, is called before each wait with the 1-based
	// number of the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do runs op until it succeeds, fails non-retryably, exhausts attempts,
// or the context is canceled. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts || p.Retryable == nil || !p.Retryable(err) {
			return err
		}

		delay := p.Backoff.Delay(attempt - 1)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
