package match

const (
	CacheControlNoStore  = "no-store, no-cache, must-revalidate"
	CacheControlUpcoming = "public, s-maxage=60, stale-while-revalidate=120"
	CacheControlFinished = "public, s-maxage=3600, stale-while-revalidate=7200"
)

// CacheControlFor picks the most conservative header for a set of statuses.
func CacheControlFor(statuses ...Status) string {
	if len(statuses) == 0 {
		return CacheControlNoStore
	}

	out := CacheControlFinished
	for _, status := range statuses {
		switch status {
		case StatusLive:
			return CacheControlNoStore
		case StatusFinished:
		default:
			out = CacheControlUpcoming
		}
	}
	return out
}

// CacheControlForMatches derives the header from the records being served.
func CacheControlForMatches(items []Match) string {
	statuses := make([]Status, 0, len(items))
	for _, item := range items {
		statuses = append(statuses, item.Status)
	}
	return CacheControlFor(statuses...)
}
