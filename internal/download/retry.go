package download

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy is a reusable retry/backoff policy: bounded attempts, exponential
// delay with jitter, and a predicate deciding which errors are worth
// another attempt.
//
// The same policy shape drives both the fetcher (transport and integrity
// retries within one fetch) and the orchestrator (whole-item retries).
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// Exponent scales the delay for each further attempt.
	Exponent float64

	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration

	// Jitter spreads each delay uniformly within ±Jitter fraction of its
	// value, so parallel tasks don't retry in lockstep. 0 disables jitter.
	Jitter float64

	// Retryable decides whether an error deserves another attempt.
	// When nil, no error is retried.
	Retryable func(error) bool
}

// DefaultPolicy returns the archiver's standard retry policy: up to 5
// attempts, 500ms base delay doubling each time, capped at 30s, ±30%
// jitter, retrying transport/integrity/throttle errors.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		Exponent:    2.0,
		MaxDelay:    30 * time.Second,
		Jitter:      0.3,
		Retryable:   IsRetryable,
	}
}

// Delay computes the backoff delay after the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	if p.Exponent > 0 {
		d *= math.Pow(p.Exponent, float64(attempt))
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, the error is not retryable, the attempt
// budget is exhausted, or the context is cancelled. The last error is
// returned.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if waitErr := p.wait(ctx, attempt-1); waitErr != nil {
				return waitErr
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
	}
	return err
}

// wait sleeps for the backoff delay of attempt, or returns early on
// cancellation.
func (p Policy) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
