// Package poll provides the single retry primitive used by every polling
// loop in the orchestrator. Retry budgets stay testable because the sleep
// function is injectable.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when the retry budget is consumed before the
// condition holds. Callers decide whether exhaustion is fatal or degraded.
var ErrExhausted = errors.New("retry budget exhausted")

// Sleep is the inter-attempt wait. Tests replace it to accelerate budgets.
var Sleep = time.Sleep

// ConditionFunc is evaluated once per attempt. attempt starts at 1.
// Returning done stops polling; returning an error aborts immediately.
type ConditionFunc func(attempt int) (done bool, err error)

// Until evaluates fn up to maxAttempts times, sleeping interval between
// attempts. It returns nil once fn reports done, fn's error if it aborts,
// or ErrExhausted when the budget is consumed.
func Until(interval time.Duration, maxAttempts int, fn ConditionFunc) error {
	return UntilContext(context.Background(), interval, maxAttempts, fn)
}

// UntilContext is Until with cancellation. The context is checked before
// each attempt; no sleep happens after the final attempt.
func UntilContext(ctx context.Context, interval time.Duration, maxAttempts int, fn ConditionFunc) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := fn(attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt < maxAttempts {
			Sleep(interval)
		}
	}
	return ErrExhausted
}
