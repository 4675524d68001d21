package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/match-sync/internal/domain/match"
	basecache "github.com/riskibarqy/match-sync/internal/platform/cache"
)

const listKeyPrefix = "match:list:"

// MatchRepository shields the persisted store from bursts of identical reads.
// Writes go straight through and invalidate what they touch.
type MatchRepository struct {
	next  match.Repository
	items *basecache.Store[cachedMatchByID]
	lists *basecache.Store[[]match.Match]
}

func NewMatchRepository(next match.Repository, ttl time.Duration) *MatchRepository {
	return &MatchRepository{
		next:  next,
		items: basecache.NewStore[cachedMatchByID](ttl),
		lists: basecache.NewStore[[]match.Match](ttl),
	}
}

type cachedMatchByID struct {
	value  match.Match
	exists bool
}

func (r *MatchRepository) Get(ctx context.Context, matchID string) (match.Match, bool, error) {
	key := "match:id:" + strings.TrimSpace(matchID)
	cached, err := r.items.GetOrLoad(ctx, key, func(ctx context.Context) (cachedMatchByID, error) {
		item, exists, err := r.next.Get(ctx, matchID)
		if err != nil {
			return cachedMatchByID{}, err
		}
		return cachedMatchByID{value: item, exists: exists}, nil
	})
	if err != nil {
		return match.Match{}, false, err
	}
	return cached.value, cached.exists, nil
}

func (r *MatchRepository) List(ctx context.Context, filter match.ListFilter) ([]match.Match, error) {
	items, err := r.lists.GetOrLoad(ctx, listKey(filter), func(ctx context.Context) ([]match.Match, error) {
		items, err := r.next.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		return append([]match.Match(nil), items...), nil
	})
	if err != nil {
		return nil, err
	}
	return append([]match.Match(nil), items...), nil
}

func (r *MatchRepository) Upsert(ctx context.Context, item match.Match) error {
	if err := r.next.Upsert(ctx, item); err != nil {
		return err
	}
	r.items.Delete(ctx, "match:id:"+item.MatchID)
	r.lists.DeletePrefix(ctx, listKeyPrefix)
	return nil
}

func listKey(filter match.ListFilter) string {
	var b strings.Builder
	b.WriteString(listKeyPrefix)
	for i, status := range filter.Statuses {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(status))
	}
	b.WriteString(":league=")
	b.WriteString(filter.LeagueID)
	b.WriteString(":match=")
	b.WriteString(filter.MatchID)
	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(filter.Limit))
	// Second precision lets the rolling upcoming window share entries.
	if filter.KickoffAfter != nil {
		b.WriteString(":after=")
		b.WriteString(strconv.FormatInt(filter.KickoffAfter.UTC().Unix(), 10))
	}
	if filter.IncludeArchived {
		b.WriteString(":archived")
	}
	return b.String()
}

var _ match.Repository = (*MatchRepository)(nil)
