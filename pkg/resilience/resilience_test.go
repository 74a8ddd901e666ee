package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var transitions []State
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     10 * time.Second,
		Clock:            clk,
		OnStateChange:    func(_ string, s State) { transitions = append(transitions, s) },
	})

	fail := func() error { return errBoom }
	require.ErrorIs(t, cb.Execute(fail), errBoom)
	require.ErrorIs(t, cb.Execute(fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)

	clk.Advance(10 * time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cb := NewCircuitBreaker("corpus-db", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second, Clock: clk})

	_ = cb.Execute(func() error { return errBoom })
	clk.Advance(time.Second)
	require.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "flaky", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "permanent", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		ShouldRetry:  func(error) bool { return false },
	}, func() error {
		attempts++
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, attempts)
}

func TestRetryPermanentError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "permanent", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return Permanent(errBoom)
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "always", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestRetryAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "cancelled", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error { return errBoom })
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, errBoom)
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("cancel", CircuitBreakerConfig{FailureThreshold: 1})
	for range 3 {
		_ = cb.Execute(func() error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerLimitsHalfOpenProbes(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	cb := NewCircuitBreaker("corpus-db", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second, Clock: clk})
	_ = cb.Execute(func() error { return errBoom })
	clk.Advance(time.Second)

	err := cb.Execute(func() error {
		assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}
