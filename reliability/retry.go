// Package reliability provides retry, circuit-breaking, and connection
// pooling helpers for clients that speak to a DICOM peer repeatedly over
// the lifetime of a process (a storage forwarder, a query broker, a
// commitment requester). The retry and circuit-breaker helpers wrap
// whatever operation the caller passes in; DefaultRetryable classifies
// DIMSE status errors by status class, and the pool's health check sends
// a C-ECHO over each pooled association.
package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffStrategy selects how RetryPolicy spaces out successive attempts.
type BackoffStrategy int

const (
	// BackoffNone retries immediately with no delay between attempts.
	BackoffNone BackoffStrategy = iota
	// BackoffFixed waits a constant Interval between attempts.
	BackoffFixed
	// BackoffLinear waits Interval*attempt between attempts.
	BackoffLinear
	// BackoffExponential doubles the wait on each attempt, capped at MaxInterval.
	BackoffExponential
	// BackoffExponentialJitter is BackoffExponential with up to +/-25% random jitter
	// applied to each computed interval, to avoid synchronized retry storms
	// across multiple clients backing off against the same peer.
	BackoffExponentialJitter
)

// RetryPolicy governs how many times, and how far apart, a failed operation
// is retried.
type RetryPolicy struct {
	Strategy BackoffStrategy

	// MaxAttempts is the total number of attempts, including the first.
	// Zero means 1 (no retries).
	MaxAttempts int

	// Interval is the base delay for BackoffFixed and BackoffLinear, and
	// the initial delay for BackoffExponential/BackoffExponentialJitter.
	// Zero defaults to 500ms.
	Interval time.Duration

	// MaxInterval caps the delay for the linear and exponential strategies.
	// Zero defaults to 30s.
	MaxInterval time.Duration

	// Retryable reports whether an error returned by the operation should
	// be retried at all. Nil defaults to DefaultRetryable.
	Retryable func(error) bool
}

// ErrAttemptsExhausted wraps the last error after MaxAttempts have failed.
type ErrAttemptsExhausted struct {
	Attempts int
	Last     error
}

func (e *ErrAttemptsExhausted) Error() string {
	return fmt.Sprintf("reliability: exhausted %d attempts: %v", e.Attempts, e.Last)
}

func (e *ErrAttemptsExhausted) Unwrap() error { return e.Last }

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) interval() time.Duration {
	if p.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return p.Interval
}

func (p RetryPolicy) maxInterval() time.Duration {
	if p.MaxInterval <= 0 {
		return 30 * time.Second
	}
	return p.MaxInterval
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return DefaultRetryable(err)
	}
	return p.Retryable(err)
}

// delay returns the wait after the given attempt number has failed
// (1-based: delay(1) is the wait before attempt 2, delay(2) before attempt 3). BackoffExponential/ExponentialJitter
// delegate to github.com/cenkalti/backoff/v4's ExponentialBackOff so the
// growth curve and its randomization factor match what that library's own
// callers get, rather than reimplementing doubling-with-jitter by hand.
func (p RetryPolicy) delay(attempt int) time.Duration {
	switch p.Strategy {
	case BackoffNone:
		return 0
	case BackoffFixed:
		return p.interval()
	case BackoffLinear:
		d := p.interval() * time.Duration(attempt)
		if d > p.maxInterval() {
			return p.maxInterval()
		}
		return d
	case BackoffExponential, BackoffExponentialJitter:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.interval()
		eb.MaxInterval = p.maxInterval()
		eb.Multiplier = 2
		if p.Strategy == BackoffExponential {
			eb.RandomizationFactor = 0
		} else {
			eb.RandomizationFactor = 0.25
		}
		eb.Reset()
		var d time.Duration
		for i := 0; i < attempt; i++ {
			d = eb.NextBackOff()
		}
		if d == backoff.Stop || d > p.maxInterval() {
			return p.maxInterval()
		}
		return d
	default:
		return p.interval()
	}
}

// Do runs fn, retrying according to the policy until it succeeds, a
// non-retryable error is returned, ctx is canceled, or attempts are
// exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := p.maxAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		wait := p.delay(attempt)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &ErrAttemptsExhausted{Attempts: attempts, Last: lastErr}
}
