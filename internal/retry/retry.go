// Package retry provides the bounded polling used to wait for external
// resources to become ready. Readiness loops poll at a fixed interval;
// transient-failure retries (registry HTTP calls) use capped exponential
// backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Check reports whether the awaited condition holds. The observation string
// is carried into TimeoutError so operators see the last known state.
type Check func(ctx context.Context) (ok bool, observed string)

// TimeoutError is returned when a retry budget is exhausted before the
// condition became true.
type TimeoutError struct {
	Attempts     int
	LastObserved string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("condition not met after %d attempts", e.Attempts)
	if e.LastObserved != "" {
		msg += fmt.Sprintf(" (last observed: %s)", e.LastObserved)
	}
	return msg
}

// Policy bounds a readiness wait: at most MaxAttempts checks, sleeping
// between them. The zero delay strategy is a fixed interval; Exponential
// policies double the delay up to MaxInterval.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	MaxInterval time.Duration // 0 means fixed-interval polling
}

// Fixed returns a fixed-interval policy, the default for service readiness.
func Fixed(maxAttempts int, interval time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, Interval: interval}
}

// Exponential returns a capped exponential backoff policy.
func Exponential(maxAttempts int, base, max time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, Interval: base, MaxInterval: max}
}

// AwaitCondition polls check until it reports true, the budget is
// exhausted, or ctx is cancelled. It returns nil on the first true
// observation and *TimeoutError once MaxAttempts checks have failed.
func (p Policy) AwaitCondition(ctx context.Context, check Check) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastObserved string
	for attempt := 1; attempt <= attempts; attempt++ {
		ok, observed := check(ctx)
		if ok {
			return nil
		}
		lastObserved = observed

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait cancelled: %w", ctx.Err())
		case <-time.After(p.delay(attempt)):
		}
	}

	return &TimeoutError{Attempts: attempts, LastObserved: lastObserved}
}

// Do runs fn, retrying while shouldRetry reports the error as transient.
// The first nil or permanent error is returned as-is; exhaustion wraps the
// last transient error.
func (p Policy) Do(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(p.delay(attempt)):
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func (p Policy) delay(attempt int) time.Duration {
	if p.MaxInterval <= 0 {
		return p.Interval
	}
	d := p.Interval
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	return d
}
