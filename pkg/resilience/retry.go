package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/juju/clock"
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// JitterFraction spreads each delay by up to ±fraction.
	JitterFraction float64
	// ShouldRetry, when set, ends the loop on errors it rejects. Errors
	// wrapped with Permanent are never retried.
	ShouldRetry func(error) bool
	Clock       clock.Clock
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	return c
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a non-retryable error, runs
// out of attempts or ctx ends.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)
	delay := cfg.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) || (cfg.ShouldRetry != nil && !cfg.ShouldRetry(err)) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
		}
		wait := jitter(delay, cfg.JitterFraction)
		logger.Warn("attempt failed", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "retry_in", wait, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: retry aborted: %w", name, errors.Join(ctx.Err(), err))
		case <-cfg.Clock.After(wait):
		}
		delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
	}
}

func jitter(d time.Duration, fraction float64) time.Duration {
	spread := float64(d) * fraction * (2*rand.Float64() - 1)
	if j := time.Duration(float64(d) + spread); j > 0 {
		return j
	}
	return d
}
