package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/riskibarqy/match-sync/internal/domain/match"
)

type MatchRepository struct {
	mu    sync.RWMutex
	items map[string]match.Match
}

func NewMatchRepository(seed []match.Match) *MatchRepository {
	items := make(map[string]match.Match, len(seed))
	for _, item := range seed {
		items[item.MatchID] = cloneMatch(item)
	}
	return &MatchRepository{items: items}
}

func (r *MatchRepository) Get(_ context.Context, matchID string) (match.Match, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[strings.TrimSpace(matchID)]
	if !ok {
		return match.Match{}, false, nil
	}
	return cloneMatch(item), true, nil
}

func (r *MatchRepository) List(_ context.Context, filter match.ListFilter) ([]match.Match, error) {
	r.mu.RLock()
	out := make([]match.Match, 0, len(r.items))
	for _, item := range r.items {
		if filter.Matches(item) {
			out = append(out, cloneMatch(item))
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b match.Match) int {
		switch {
		case match.Less(a, b):
			return -1
		case match.Less(b, a):
			return 1
		default:
			return 0
		}
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MatchRepository) Upsert(_ context.Context, item match.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := cloneMatch(item)
	if existing, ok := r.items[item.MatchID]; ok {
		next.Status = existing.Status.Advance(next.Status)
		if existing.FinalResult != nil {
			final := *existing.FinalResult
			next.FinalResult = &final
			next.CurrentScore = nil
			if existing.CurrentScore != nil {
				score := *existing.CurrentScore
				next.CurrentScore = &score
			}
		}
		if next.CreatedAt.IsZero() {
			next.CreatedAt = existing.CreatedAt
		}
	}
	r.items[item.MatchID] = next
	return nil
}

func cloneMatch(item match.Match) match.Match {
	out := item
	if item.CurrentScore != nil {
		score := *item.CurrentScore
		out.CurrentScore = &score
	}
	if item.FinalResult != nil {
		final := *item.FinalResult
		out.FinalResult = &final
	}
	out.Odds = slices.Clone(item.Odds)
	out.Prediction = slices.Clone(item.Prediction)
	out.PredictionV2 = slices.Clone(item.PredictionV2)
	return out
}

var _ match.Repository = (*MatchRepository)(nil)
