package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUntil_SucceedsImmediately(t *testing.T) {
	originalSleep := Sleep
	defer func() { Sleep = originalSleep }()

	var sleeps int
	Sleep = func(time.Duration) { sleeps++ }

	calls := 0
	err := Until(time.Second, 5, func(attempt int) (bool, error) {
		calls++
		return true, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, sleeps, "no sleep when the first attempt succeeds")
}

func TestUntil_SucceedsOnLaterAttempt(t *testing.T) {
	originalSleep := Sleep
	defer func() { Sleep = originalSleep }()

	var slept []time.Duration
	Sleep = func(d time.Duration) { slept = append(slept, d) }

	err := Until(2*time.Second, 10, func(attempt int) (bool, error) {
		return attempt == 3, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
}

func TestUntil_Exhausted(t *testing.T) {
	originalSleep := Sleep
	defer func() { Sleep = originalSleep }()

	var sleeps int
	Sleep = func(time.Duration) { sleeps++ }

	calls := 0
	err := Until(time.Second, 4, func(attempt int) (bool, error) {
		calls++
		return false, nil
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, calls, "every attempt in the budget is consumed")
	assert.Equal(t, 3, sleeps, "no sleep after the final attempt")
}

func TestUntil_AttemptNumbersStartAtOne(t *testing.T) {
	originalSleep := Sleep
	defer func() { Sleep = originalSleep }()
	Sleep = func(time.Duration) {}

	var attempts []int
	_ = Until(time.Second, 3, func(attempt int) (bool, error) {
		attempts = append(attempts, attempt)
		return false, nil
	})
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestUntil_ConditionErrorAborts(t *testing.T) {
	originalSleep := Sleep
	defer func() { Sleep = originalSleep }()
	Sleep = func(time.Duration) {}

	boom := errors.New("boom")
	calls := 0
	err := Until(time.Second, 5, func(attempt int) (bool, error) {
		calls++
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntilContext_Cancelled(t *testing.T) {
	originalSleep := Sleep
	defer func() { Sleep = originalSleep }()
	Sleep = func(time.Duration) {}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := UntilContext(ctx, time.Second, 10, func(attempt int) (bool, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}
