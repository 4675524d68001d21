package match

import (
	"context"
	"time"
)

// ListFilter narrows persisted match listings.
type ListFilter struct {
	Statuses        []Status
	LeagueID        string
	MatchID         string
	Limit           int
	KickoffAfter    *time.Time
	IncludeArchived bool
}

// Repository is the persisted store keyed by MatchID.
// Upsert never replaces a stored final result with a different one.
type Repository interface {
	Get(ctx context.Context, matchID string) (Match, bool, error)
	List(ctx context.Context, filter ListFilter) ([]Match, error)
	Upsert(ctx context.Context, item Match) error
}

// Matches reports whether item passes the filter. Stores that cannot express a
// filter natively use it to post-filter.
func (f ListFilter) Matches(item Match) bool {
	if !f.IncludeArchived && (item.IsArchived || !item.IsActive) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, status := range f.Statuses {
			if item.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.LeagueID != "" && item.LeagueID != f.LeagueID {
		return false
	}
	if f.MatchID != "" && item.MatchID != f.MatchID {
		return false
	}
	if f.KickoffAfter != nil && item.KickoffAt.Before(*f.KickoffAfter) {
		return false
	}
	return true
}

// Less orders listings by kickoff then match id.
func Less(a, b Match) bool {
	if !a.KickoffAt.Equal(b.KickoffAt) {
		return a.KickoffAt.Before(b.KickoffAt)
	}
	return a.MatchID < b.MatchID
}
