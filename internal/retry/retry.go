// Package retry implements the small retry combinator called out in
// spec.md §9 ("decorator-based retry -> a small retry combinator
// function taking a closure plus a RetryPolicy value struct"), used
// only by the Execution Engine's order-submission path (spec §4.3.5).
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/alchemiser/tradengine/internal/errors"
)

// Policy describes backoff behavior for Do.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	Jitter        float64 // fraction, e.g. 0.5 for +/-50%
	Retryable     func(error) bool
}

// OrderSubmissionPolicy is the policy mandated by spec §4.3.5: base 1.0s,
// factor 2.0, max delay 60s, max 3 attempts, +/-50% jitter. Only
// transient errors are retried: untyped errors (e.g. transport failures)
// and TradingErrors coded ErrOrderTransient. Any other TradingError, such
// as a broker rejection or an open connectivity breaker, returns at once.
func OrderSubmissionPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      60 * time.Second,
		Jitter:        0.5,
		Retryable: func(err error) bool {
			code := apperrors.Code(err)
			return err != nil && (code == "" || code == apperrors.ErrOrderTransient)
		},
	}
}

// Do executes fn, retrying on retryable errors per policy with
// exponential backoff and jitter, up to policy.MaxAttempts total
// attempts. Context cancellation aborts the wait immediately.
func Do(ctx context.Context, fn func() error, policy Policy) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = func(err error) bool { return err != nil }
	}

	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts-1 {
			return err
		}

		delay := backoffDelay(attempt, policy)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.New("retry aborted: " + ctx.Err().Error())
		}
	}
	return err
}

func backoffDelay(attempt int, policy Policy) time.Duration {
	delay := float64(policy.BaseDelay) * math.Pow(policy.BackoffFactor, float64(attempt))
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter > 0 {
		jitter := policy.Jitter * delay
		delay = delay - jitter + (rand.Float64() * 2 * jitter)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
