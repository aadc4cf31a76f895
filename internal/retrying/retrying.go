// Package retrying provides a bounded retry combinator with a fixed delay.
package retrying

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// Delay is the fixed pause between a failed attempt and the next one.
	Delay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil means every error except context cancellation is retryable.
	Retryable func(error) bool
	// OnRetry, if set, is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// ErrInvalidPolicy is returned when a policy allows no attempts.
var ErrInvalidPolicy = errors.New("retry policy needs at least one attempt")

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. On exhaustion the last error is returned as-is.
func Do(ctx context.Context, p Policy, fn Func) error {
	if p.Attempts < 1 {
		return fmt.Errorf("%w: attempts=%d", ErrInvalidPolicy, p.Attempts)
	}

	delay := p.Delay
	if delay <= 0 {
		// go-retry rejects non-positive intervals.
		delay = time.Nanosecond
	}
	b := retry.WithMaxRetries(uint64(p.Attempts-1), retry.NewConstant(delay))

	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if p.OnRetry != nil && attempt < p.Attempts {
			p.OnRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
}

// DefaultRetryable treats everything but context errors as transient.
func DefaultRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
