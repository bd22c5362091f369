package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy describes how an operation is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// MaxDelay is the maximum delay between attempts.
	MaxDelay time.Duration

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool

	// IsRetryable decides whether a failed attempt is tried again.
	// Nil means every error is retryable.
	IsRetryable func(error) bool

	// OnRetry is called before each backoff wait with the failed attempt
	// number (1-based), its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns a general purpose policy for transient failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   1 * time.Second,
		Multiplier:  2.0,
		MaxDelay:    16 * time.Second,
		IsRetryable: IsRetryable,
	}
}

// RateLimitPolicy retries only rate-limit failures: 8 attempts, starting at
// 2s and doubling up to 60s.
func RateLimitPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 8,
		BaseDelay:   2000 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    60000 * time.Millisecond,
		IsRetryable: IsRateLimited,
	}
}

// Delay returns the wait before attempt n+1 after n failed attempts.
func (p RetryPolicy) Delay(n int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) retryable(err error) bool {
	if p.IsRetryable == nil {
		return true
	}
	return p.IsRetryable(err)
}

// Retry executes fn until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. If the context is cancelled, it returns the
// context error immediately.
func Retry(ctx context.Context, p RetryPolicy, fn func() error) error {
	_, err := RetryWithResult(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult executes a function that returns a value with retry logic.
// A non-retryable error is returned unwrapped; exhausting the attempts wraps
// the last error.
func RetryWithResult[T any](ctx context.Context, p RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		wait := p.Delay(attempt)
		if p.Jitter {
			// delay * (0.5 + rand(0, 0.5))
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()*0.5))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
