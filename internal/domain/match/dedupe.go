package match

import (
	"iter"
	"slices"
	"strings"
)

// Dedupe yields the first element seen for each key, in input order. Elements
// whose key is empty or a sentinel such as "null" are dropped. Every range over
// the returned sequence starts with a fresh key set.
func Dedupe[T any](seq iter.Seq[T], keyOf func(T) string) iter.Seq[T] {
	return func(yield func(T) bool) {
		seen := make(map[string]struct{})
		for item := range seq {
			key := strings.TrimSpace(keyOf(item))
			if !ValidMatchID(key) {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if !yield(item) {
				return
			}
		}
	}
}

func DedupeMatches(items []Match) []Match {
	return slices.Collect(Dedupe(slices.Values(items), func(item Match) string {
		return item.MatchID
	}))
}
