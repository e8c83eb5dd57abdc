package remote

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how transport faults are retried.
type RetryPolicy struct {
	MaxAttempts int // total attempts including the first; values < 1 mean 1
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      float64 // fraction of the wait, 0-1
}

// DefaultRetryPolicy suits a short-range radio or USB serial link.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		InitialWait: 250 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// backoff returns the wait before the attempt following attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	wait := float64(p.InitialWait) * math.Pow(mult, float64(attempt-1))
	if p.MaxWait > 0 && wait > float64(p.MaxWait) {
		wait = float64(p.MaxWait)
	}

	if p.Jitter > 0 {
		wait += wait * p.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter, not security
	}

	return time.Duration(wait)
}

// retry calls fn until it succeeds, fails with a non-retryable error, the
// attempts run out, or ctx ends. onRetry is invoked before each wait.
func retry[T any](ctx context.Context, p RetryPolicy, fn func() (T, error), onRetry func(attempt int, err error)) (T, error) {
	attempts := max(p.MaxAttempts, 1)

	var (
		result T
		err    error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn()
		if err == nil || !isRetryable(err) || attempt == attempts {
			return result, err
		}

		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	return result, err
}
