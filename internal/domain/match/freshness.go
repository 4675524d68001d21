package match

import "time"

const (
	DefaultLiveTTL     = 30 * time.Second
	DefaultUpcomingTTL = 2 * time.Minute
)

// FreshnessPolicy decides whether a persisted record may be served without a resync.
type FreshnessPolicy struct {
	LiveTTL     time.Duration
	UpcomingTTL time.Duration
}

func DefaultFreshnessPolicy() FreshnessPolicy {
	return FreshnessPolicy{
		LiveTTL:     DefaultLiveTTL,
		UpcomingTTL: DefaultUpcomingTTL,
	}
}

// TTL returns the freshness window for a status. Finished records have none.
func (p FreshnessPolicy) TTL(status Status) time.Duration {
	switch status {
	case StatusLive:
		if p.LiveTTL > 0 {
			return p.LiveTTL
		}
		return DefaultLiveTTL
	case StatusFinished:
		return 0
	default:
		if p.UpcomingTTL > 0 {
			return p.UpcomingTTL
		}
		return DefaultUpcomingTTL
	}
}

// IsTooOld is pure: finished records are never too old, the rest expire once
// now - LastSyncedAt exceeds the status TTL. A record that was never synced is too old.
func (p FreshnessPolicy) IsTooOld(item Match, now time.Time) bool {
	if item.Status == StatusFinished {
		return false
	}
	if item.LastSyncedAt.IsZero() {
		return true
	}
	return now.Sub(item.LastSyncedAt) > p.TTL(item.Status)
}

// Partition splits records into fresh and stale, keeping input order.
func (p FreshnessPolicy) Partition(items []Match, now time.Time) (fresh, stale []Match) {
	for _, item := range items {
		if p.IsTooOld(item, now) {
			stale = append(stale, item)
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, stale
}
