package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// AttemptFunc runs one attempt. ctx is private to the attempt and is cancelled
// as soon as the attempt returns.
type AttemptFunc func(ctx context.Context, attempt int) error

// Retry runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. Every attempt gets its own context derived from ctx, bounded
// by AttemptTimeout when set. The last attempt's error is returned.
func Retry(ctx context.Context, cfg BackoffConfig, retryable func(error) bool, fn AttemptFunc) error {
	cfg = NormalizeBackoffConfig(cfg)
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = runAttempt(ctx, cfg.AttemptTimeout, attempt, fn)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		if !sleep(ctx, Delay(cfg, attempt)) {
			return lastErr
		}
	}

	return lastErr
}

func runAttempt(parent context.Context, timeout time.Duration, attempt int, fn AttemptFunc) error {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	defer cancel()

	return fn(ctx, attempt)
}

// Delay returns the wait before the attempt that follows attempt (1-based).
func Delay(cfg BackoffConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= cfg.Multiplier
		if delay >= float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
			break
		}
	}

	if cfg.Jitter > 0 && delay > 0 {
		spread := delay * cfg.Jitter
		delay = delay - spread + rand.Float64()*2*spread
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
