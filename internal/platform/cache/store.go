package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/riskibarqy/match-sync/internal/platform/resilience"
)

const sweepThreshold = 1024

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is an in-process TTL map. Loads for the same key are collapsed.
// Every delete bumps the generation; a load that started under an older
// generation returns its value but does not cache it.
type Store[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	generation uint64
	ttl        time.Duration
	flight     resilience.SingleFlight
	now        func() time.Time
}

// NewStore builds a store. A ttl <= 0 keeps entries until they are deleted.
func NewStore[V any](ttl time.Duration) *Store[V] {
	return &Store[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if s.ttl > 0 && !e.expiresAt.After(s.now()) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && current.expiresAt.Equal(e.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return zero, false
	}

	return e.value, true
}

func (s *Store[V]) Set(_ context.Context, key string, value V) {
	if key == "" {
		return
	}

	s.mu.Lock()
	s.setLocked(key, value)
	s.mu.Unlock()
}

// setIfGeneration stores value only when no delete happened since gen was read.
func (s *Store[V]) setIfGeneration(key string, value V, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return false
	}
	s.setLocked(key, value)
	return true
}

func (s *Store[V]) setLocked(key string, value V) {
	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = s.now().Add(s.ttl)
	}
	if s.ttl > 0 && len(s.entries) >= sweepThreshold {
		s.sweepLocked()
	}
	s.entries[key] = entry[V]{value: value, expiresAt: expiresAt}
}

func (s *Store[V]) currentGeneration() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// sweepLocked drops expired entries. Keys that are never read again would
// otherwise stay in the map forever.
func (s *Store[V]) sweepLocked() {
	now := s.now()
	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}

func (s *Store[V]) Delete(_ context.Context, keys ...string) {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	s.generation++
	s.mu.Unlock()
}

func (s *Store[V]) DeletePrefix(_ context.Context, prefix string) {
	if prefix == "" {
		return
	}

	s.mu.Lock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	s.generation++
	s.mu.Unlock()
}

func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GetOrLoad returns the cached value or runs loader once for all concurrent
// callers of key. Errors are not cached, and neither is a value loaded across
// a Delete or DeletePrefix.
func (s *Store[V]) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (V, error)) (V, error) {
	var zero V
	if loader == nil {
		return zero, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}

	// Callers arriving after an invalidation must not join a load that
	// started before it.
	gen := s.currentGeneration()
	flightKey := key + "#" + strconv.FormatUint(gen, 10)

	value, err, _ := s.flight.DoContext(ctx, flightKey, func() (any, error) {
		if cached, ok := s.Get(ctx, key); ok {
			return cached, nil
		}

		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		s.setIfGeneration(key, loaded, gen)
		return loaded, nil
	})
	if err != nil {
		return zero, err
	}

	out, ok := value.(V)
	if !ok {
		return zero, fmt.Errorf("cache entry %q has unexpected type %T", key, value)
	}
	return out, nil
}
