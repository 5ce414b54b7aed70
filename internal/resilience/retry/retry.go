// Package retry executes operations under a bounded exponential-backoff
// policy driven by the failure taxonomy: only Transient failures are
// retried, and an open circuit breaker short-circuits the whole policy
// without consuming attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"compintel/internal/resilience/circuitbreaker"
	"compintel/internal/resilience/faults"
)

// Config holds the retry policy parameters.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff factor.
	Multiplier float64

	// JitterFraction is the fraction of the delay added as random jitter
	// (0.0 to 1.0) to avoid thundering-herd retries.
	JitterFraction float64
}

// DefaultConfig returns the default retry policy: 3 attempts, 1s initial
// delay doubling up to 30s, 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Validate checks the policy parameters.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("delays must be non-negative")
	}
	if c.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be at least 1.0, got %v", c.Multiplier)
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1.0 {
		return fmt.Errorf("jitter fraction must be in [0,1], got %v", c.JitterFraction)
	}
	return nil
}

// Do executes fn under the policy, routing every attempt through the
// breaker when one is provided.
//
// Behavior:
//   - an open breaker short-circuits immediately with
//     circuitbreaker.ErrOpen; no attempt is consumed
//   - Transient failures are retried with exponential backoff and jitter,
//     up to MaxAttempts total attempts
//   - Permanent and Critical failures return immediately
//   - context cancellation aborts the backoff wait and returns
//
// Exhausting attempts on a Transient failure wraps the last error; the
// result still classifies Transient so callers treat it as a stage-level
// failure, never an abort.
func Do(ctx context.Context, cfg Config, breaker *circuitbreaker.CircuitBreaker, fn func(context.Context) error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if breaker != nil && breaker.IsOpen() {
			return fmt.Errorf("%s: %w", breaker.Name(), circuitbreaker.ErrOpen)
		}

		lastErr = execute(ctx, breaker, fn)
		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}

		if errors.Is(lastErr, circuitbreaker.ErrOpen) {
			// The breaker tripped under our feet; stop without burning
			// the remaining attempts.
			return lastErr
		}

		kind := faults.Classify(lastErr)
		if kind != faults.KindTransient {
			slog.Warn("non-retryable failure",
				slog.Int("attempt", attempt),
				slog.String("kind", kind.String()),
				slog.Any("error", lastErr))
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Warn("transient failure, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		select {
		case <-time.After(addJitter(delay, cfg.JitterFraction)):
		case <-ctx.Done():
			return fmt.Errorf("retry abandoned: %w", ctx.Err())
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

func execute(ctx context.Context, breaker *circuitbreaker.CircuitBreaker, fn func(context.Context) error) error {
	if breaker == nil {
		return fn(ctx)
	}
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

// addJitter adds random jitter to a delay to spread out retry storms.
func addJitter(delay time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return delay
	}
	if fraction > 1.0 {
		fraction = 1.0
	}
	// #nosec G404 -- math/rand suffices for backoff jitter.
	jitter := time.Duration(rand.Float64() * float64(delay) * fraction)
	return delay + jitter
}
