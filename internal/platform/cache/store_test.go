package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_GetOrLoad_UsesSingleFlight(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "value", nil
	}

	const workers = 32
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := store.GetOrLoad(context.Background(), "match:42", loader)
			if err != nil {
				errCh <- err
				return
			}
			if v != "value" {
				errCh <- errUnexpectedValue
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_GetOrLoad_DoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	store := NewStore[int](time.Minute)
	var calls atomic.Int32
	loadErr := errors.New("db down")

	loader := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 0, loadErr
		}
		return 7, nil
	}

	if _, err := store.GetOrLoad(context.Background(), "k", loader); !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	v, err := store.GetOrLoad(context.Background(), "k", loader)
	if err != nil || v != 7 {
		t.Fatalf("expected reload to succeed, got %v %v", v, err)
	}
}

func TestStore_ExpiresEntries(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Second)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set(context.Background(), "k", "v")
	if _, ok := store.Get(context.Background(), "k"); !ok {
		t.Fatalf("expected hit before expiry")
	}

	now = now.Add(2 * time.Second)
	if _, ok := store.Get(context.Background(), "k"); ok {
		t.Fatalf("expected miss after expiry")
	}
	if store.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted")
	}
}

func TestStore_DeletePrefix(t *testing.T) {
	t.Parallel()

	store := NewStore[string](0)
	ctx := context.Background()
	store.Set(ctx, "list:upcoming", "a")
	store.Set(ctx, "list:live", "b")
	store.Set(ctx, "match:1", "c")

	store.DeletePrefix(ctx, "list:")
	if store.Len() != 1 {
		t.Fatalf("expected only match entry to remain, got %d entries", store.Len())
	}
	store.Delete(ctx, "match:1")
	if _, ok := store.Get(ctx, "match:1"); ok {
		t.Fatalf("expected delete to remove entry")
	}
}

var errUnexpectedValue = errors.New("unexpected loaded value")

func TestStore_SetSweepsExpiredEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore[int](time.Second)
	store.now = func() time.Time { return now }

	for i := 0; i < sweepThreshold; i++ {
		store.Set(context.Background(), "list:"+strconv.Itoa(i), i)
	}
	now = now.Add(2 * time.Second)
	store.Set(context.Background(), "match:42", 42)

	if got := store.Len(); got != 1 {
		t.Fatalf("expected expired entries to be swept, got %d entries", got)
	}
}

func TestStore_GetOrLoad_DropsValueLoadedAcrossDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore[string](time.Minute)
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string, 1)

	go func() {
		v, _ := store.GetOrLoad(ctx, "match:42", func(context.Context) (string, error) {
			close(entered)
			<-release
			return "old", nil
		})
		done <- v
	}()

	<-entered
	store.Delete(ctx, "match:42")

	fresh, err := store.GetOrLoad(ctx, "match:42", func(context.Context) (string, error) {
		return "new", nil
	})
	if err != nil || fresh != "new" {
		t.Fatalf("load after delete = %q, %v; want new", fresh, err)
	}

	close(release)
	if got := <-done; got != "old" {
		t.Fatalf("in-flight caller got %q, want old", got)
	}
	if v, ok := store.Get(ctx, "match:42"); !ok || v != "new" {
		t.Fatalf("cached value = %q (ok=%v), want new", v, ok)
	}

	store.DeletePrefix(ctx, "match:")
	if _, ok := store.Get(ctx, "match:42"); ok {
		t.Fatalf("expected entry to be gone after prefix delete")
	}
}
