// Package resilience provides fault-tolerance primitives: exponential-backoff
// retry with jitter and a context-based timeout wrapper.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// ShouldRetry filters errors worth another attempt. Nil retries all.
	ShouldRetry func(error) bool
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialDelay:   8 * time.Second,
		MaxDelay:       800 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// sleep and jitter are replaced in tests.
var (
	sleep  = sleepContext
	jitter = rand.Float64
)

// Retry calls fn until it succeeds, the attempt budget is spent, ShouldRetry
// rejects the error, or ctx is done.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, name, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is Retry for operations that produce a value. On exhaustion the error of
// the final attempt is returned, wrapped with the attempt count.
func Do[T any](ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = withDefaults(cfg)
	logger := slog.Default().With("component", "retry", "operation", name)
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
		}
		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("succeeded after retry", "attempt", attempt+1)
			}
			return result, nil
		}
		lastErr = err
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			logger.Warn("operation failed with non-retryable error", "attempt", attempt+1, "error", err)
			return zero, fmt.Errorf("%s: giving up after attempt %d: %w", name, attempt+1, err)
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		delay := ComputeDelay(attempt, cfg)
		logger.Warn("operation failed, retrying",
			"attempt", attempt+1,
			"max_attempts", cfg.MaxAttempts,
			"error", err,
			"next_delay", delay,
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry aborted during backoff: %w", err)
		}
	}
	return zero, fmt.Errorf("all %d attempts failed for %s: %w", cfg.MaxAttempts, name, lastErr)
}

// ComputeDelay returns the backoff before the attempt following the zero-based
// attempt index: min(MaxDelay, InitialDelay*Multiplier^attempt) scaled by
// (1 + U[0, JitterFraction)).
func ComputeDelay(attempt int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if backoff > float64(cfg.MaxDelay) {
		backoff = float64(cfg.MaxDelay)
	}
	backoff *= 1 + cfg.JitterFraction*jitter()
	return time.Duration(backoff)
}

func withDefaults(cfg RetryConfig) RetryConfig {
	defaults := defaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = defaults.InitialDelay
	}
	if cfg.MaxDelay < 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaults.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
