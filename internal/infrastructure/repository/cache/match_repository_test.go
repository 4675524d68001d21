package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riskibarqy/match-sync/internal/domain/match"
	"github.com/riskibarqy/match-sync/internal/infrastructure/repository/memory"
)

type countingRepository struct {
	match.Repository
	gets  int
	lists int
	err   error
}

func (r *countingRepository) Get(ctx context.Context, matchID string) (match.Match, bool, error) {
	r.gets++
	if r.err != nil {
		return match.Match{}, false, r.err
	}
	return r.Repository.Get(ctx, matchID)
}

func (r *countingRepository) List(ctx context.Context, filter match.ListFilter) ([]match.Match, error) {
	r.lists++
	if r.err != nil {
		return nil, r.err
	}
	return r.Repository.List(ctx, filter)
}

func TestMatchRepository_CachesReadsAndInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	next := &countingRepository{Repository: memory.NewMatchRepository([]match.Match{
		{MatchID: "42", Status: match.StatusUpcoming, IsActive: true},
	})}
	repo := NewMatchRepository(next, time.Minute)

	for i := 0; i < 3; i++ {
		if _, ok, err := repo.Get(ctx, "42"); err != nil || !ok {
			t.Fatalf("unexpected get result ok=%v err=%v", ok, err)
		}
		if _, err := repo.List(ctx, match.ListFilter{Limit: 10}); err != nil {
			t.Fatalf("unexpected list error: %v", err)
		}
	}
	if next.gets != 1 || next.lists != 1 {
		t.Fatalf("expected one load each, got gets=%d lists=%d", next.gets, next.lists)
	}

	if err := repo.Upsert(ctx, match.Match{MatchID: "42", Status: match.StatusLive, IsActive: true}); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}

	item, _, _ := repo.Get(ctx, "42")
	items, _ := repo.List(ctx, match.ListFilter{Limit: 10})
	if item.Status != match.StatusLive || len(items) != 1 || items[0].Status != match.StatusLive {
		t.Fatalf("expected fresh reads after upsert, got %+v %+v", item, items)
	}
	if next.gets != 2 || next.lists != 2 {
		t.Fatalf("expected reload after invalidation, got gets=%d lists=%d", next.gets, next.lists)
	}
}

func TestMatchRepository_CachesMisses(t *testing.T) {
	ctx := context.Background()
	next := &countingRepository{Repository: memory.NewMatchRepository(nil)}
	repo := NewMatchRepository(next, time.Minute)

	for i := 0; i < 2; i++ {
		if _, ok, err := repo.Get(ctx, "99"); err != nil || ok {
			t.Fatalf("expected cached miss, ok=%v err=%v", ok, err)
		}
	}
	if next.gets != 1 {
		t.Fatalf("expected single load for a miss, got %d", next.gets)
	}
}

func TestMatchRepository_DoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	next := &countingRepository{Repository: memory.NewMatchRepository(nil), err: errors.New("db down")}
	repo := NewMatchRepository(next, time.Minute)

	for i := 0; i < 2; i++ {
		if _, _, err := repo.Get(ctx, "42"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if next.gets != 2 {
		t.Fatalf("expected errors to bypass the cache, got %d loads", next.gets)
	}
}

// pausingRepository blocks its first Get after reading from the wrapped store.
type pausingRepository struct {
	match.Repository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *pausingRepository) Get(ctx context.Context, matchID string) (match.Match, bool, error) {
	item, ok, err := r.Repository.Get(ctx, matchID)
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return item, ok, err
}

func TestMatchRepository_UpsertDuringReadIsNotShadowed(t *testing.T) {
	ctx := context.Background()
	next := &pausingRepository{
		Repository: memory.NewMatchRepository([]match.Match{
			{MatchID: "42", Status: match.StatusUpcoming, IsActive: true},
		}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	repo := NewMatchRepository(next, time.Minute)

	done := make(chan match.Match, 1)
	go func() {
		item, _, _ := repo.Get(ctx, "42")
		done <- item
	}()

	<-next.entered
	if err := repo.Upsert(ctx, match.Match{MatchID: "42", Status: match.StatusLive, IsActive: true}); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	close(next.release)

	if stale := <-done; stale.Status != match.StatusUpcoming {
		t.Fatalf("in-flight read should see the value it loaded, got %s", stale.Status)
	}
	item, ok, err := repo.Get(ctx, "42")
	if err != nil || !ok || item.Status != match.StatusLive {
		t.Fatalf("expected the upserted record, got %+v ok=%v err=%v", item, ok, err)
	}
}

func TestListKey(t *testing.T) {
	after := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	got := listKey(match.ListFilter{
		Statuses:     []match.Status{match.StatusUpcoming, match.StatusLive},
		LeagueID:     "8",
		Limit:        20,
		KickoffAfter: &after,
	})
	want := "match:list:UPCOMING,LIVE:league=8:match=:limit=20:after=1772366400"
	if got != want {
		t.Fatalf("unexpected key:\nwant: %s\ngot:  %s", want, got)
	}
}
