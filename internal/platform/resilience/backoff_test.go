package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func fastBackoff(attempts int) BackoffConfig {
	return BackoffConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetry_ExhaustsBudgetWithIndependentContexts(t *testing.T) {
	var contexts []context.Context
	var attempts []int

	err := Retry(context.Background(), fastBackoff(3), nil, func(ctx context.Context, attempt int) error {
		contexts = append(contexts, ctx)
		attempts = append(attempts, attempt)
		return fmt.Errorf("attempt %d: %w", attempt, errFlaky)
	})

	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected last error, got %v", err)
	}
	if err.Error() != "attempt 3: flaky" {
		t.Fatalf("expected error from third attempt, got %q", err.Error())
	}
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Fatalf("expected attempts 1..3, got %v", attempts)
	}
	for i, ctx := range contexts {
		if ctx.Err() == nil {
			t.Fatalf("attempt %d context should be cancelled after the attempt", i+1)
		}
		for j := i + 1; j < len(contexts); j++ {
			if ctx == contexts[j] {
				t.Fatalf("attempts %d and %d shared a context", i+1, j+1)
			}
		}
	}
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastBackoff(5), nil, func(_ context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Retry(context.Background(), fastBackoff(5), func(err error) bool {
		return !errors.Is(err, fatal)
	}, func(context.Context, int) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("expected single fatal attempt, got calls=%d err=%v", calls, err)
	}
}

func TestRetry_AttemptTimeoutDoesNotLeakIntoNextAttempt(t *testing.T) {
	cfg := fastBackoff(2)
	cfg.AttemptTimeout = 5 * time.Millisecond

	var results []error
	err := Retry(context.Background(), cfg, nil, func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			<-ctx.Done()
			results = append(results, ctx.Err())
			return ctx.Err()
		}
		results = append(results, ctx.Err())
		return nil
	})
	if err != nil {
		t.Fatalf("expected second attempt to succeed, got %v", err)
	}
	if !errors.Is(results[0], context.DeadlineExceeded) || results[1] != nil {
		t.Fatalf("unexpected attempt context states: %v", results)
	}
}

func TestRetry_ParentCancelledReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := BackoffConfig{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, cfg, nil, func(context.Context, int) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) || calls != 1 {
		t.Fatalf("expected last error after cancel, got calls=%d err=%v", calls, err)
	}
}

func TestDelay_DoublesUpToCap(t *testing.T) {
	cfg := NormalizeBackoffConfig(BackoffConfig{
		MaxAttempts:  6,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	})

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, expected := range want {
		if got := Delay(cfg, i+1); got != expected {
			t.Fatalf("Delay(attempt=%d) = %s, want %s", i+1, got, expected)
		}
	}
}

func TestDelay_JitterStaysInBounds(t *testing.T) {
	cfg := NormalizeBackoffConfig(BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       0.5,
	})
	for i := 0; i < 200; i++ {
		got := Delay(cfg, 2)
		if got < time.Second || got > 3*time.Second {
			t.Fatalf("jittered delay out of bounds: %s", got)
		}
	}
}
