package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
)

var (
	ErrMissingIdentifier  = errors.New("payload has no resolvable match id")
	ErrIdentifierMismatch = errors.New("payload match id does not match existing record")
)

// canonicalJSON sorts object keys so that merged documents are byte-stable.
var canonicalJSON = sonic.Config{
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// ToDatabaseFormat reshapes a complete upstream payload into a new record.
func ToDatabaseFormat(full FullPayload, now time.Time) (Match, error) {
	id := strings.TrimSpace(full.MatchID)
	if !ValidMatchID(id) {
		return Match{}, ErrMissingIdentifier
	}

	status := full.Status
	if !status.Valid() {
		status = StatusUpcoming
	}

	out := Match{
		MatchID:      id,
		Status:       status,
		KickoffAt:    full.KickoffAt.UTC(),
		LeagueID:     strings.TrimSpace(full.LeagueID),
		LeagueName:   strings.TrimSpace(full.LeagueName),
		HomeTeamID:   strings.TrimSpace(full.HomeTeamID),
		HomeTeamName: strings.TrimSpace(full.HomeTeamName),
		AwayTeamID:   strings.TrimSpace(full.AwayTeamID),
		AwayTeamName: strings.TrimSpace(full.AwayTeamName),
		Venue:        strings.TrimSpace(full.Venue),
		CurrentScore: cloneScore(full.CurrentScore),
		FinalResult:  cloneFinalResult(full.FinalResult),
		Odds:         canonicalOrNil(full.Odds),
		Prediction:   canonicalOrNil(full.Prediction),
		PredictionV2: canonicalOrNil(full.PredictionV2),
		LastSyncedAt: now,
		IsActive:     true,
		SyncCount:    1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	finalize(&out)
	return out, nil
}

// ApplyFull refreshes an existing record from a full payload. Identity and
// visibility flags survive the refresh. A finalized record is frozen.
func ApplyFull(full FullPayload, existing *Match, now time.Time) (Match, error) {
	out, err := ToDatabaseFormat(full, now)
	if err != nil {
		return Match{}, err
	}
	if existing == nil {
		return out, nil
	}
	if existing.MatchID != out.MatchID {
		return Match{}, fmt.Errorf("%w: existing=%s payload=%s", ErrIdentifierMismatch, existing.MatchID, out.MatchID)
	}
	if existing.IsFinalized() {
		return touchFinalized(*existing, now), nil
	}

	out.Status = existing.Status.Advance(full.Status)
	out.LeagueID = firstNonEmpty(out.LeagueID, existing.LeagueID)
	out.LeagueName = firstNonEmpty(out.LeagueName, existing.LeagueName)
	out.HomeTeamID = firstNonEmpty(out.HomeTeamID, existing.HomeTeamID)
	out.AwayTeamID = firstNonEmpty(out.AwayTeamID, existing.AwayTeamID)
	out.Venue = firstNonEmpty(out.Venue, existing.Venue)
	if out.CurrentScore == nil {
		out.CurrentScore = cloneScore(existing.CurrentScore)
	}
	if existing.FinalResult != nil {
		out.FinalResult = cloneFinalResult(existing.FinalResult)
	}
	if len(out.Odds) == 0 {
		out.Odds = existing.Odds
	}
	if len(out.Prediction) == 0 {
		out.Prediction = existing.Prediction
	}
	if len(out.PredictionV2) == 0 {
		out.PredictionV2 = existing.PredictionV2
	}
	out.IsActive = existing.IsActive
	out.IsArchived = existing.IsArchived
	out.SyncCount = existing.SyncCount + 1
	if !existing.CreatedAt.IsZero() {
		out.CreatedAt = existing.CreatedAt
	}
	finalize(&out)
	return out, nil
}

// MergeLiteWithExisting overlays the non-null fields of lite onto existing.
// Absent fields are preserved, LastSyncedAt moves to now and SyncCount grows by one.
// Re-applying the same payload yields the same fields apart from SyncCount.
// A finalized record keeps its content and only records the sync.
func MergeLiteWithExisting(lite LitePayload, existing Match, now time.Time) (Match, error) {
	id := strings.TrimSpace(lite.MatchID)
	if !ValidMatchID(id) {
		return Match{}, ErrMissingIdentifier
	}
	if existing.MatchID != id {
		return Match{}, fmt.Errorf("%w: existing=%s payload=%s", ErrIdentifierMismatch, existing.MatchID, id)
	}
	if existing.IsFinalized() {
		return touchFinalized(existing, now), nil
	}

	out := existing
	if lite.Status != nil && lite.Status.Valid() {
		out.Status = existing.Status.Advance(*lite.Status)
	}
	if lite.KickoffAt != nil && !lite.KickoffAt.IsZero() {
		out.KickoffAt = lite.KickoffAt.UTC()
	}
	if lite.CurrentScore != nil {
		out.CurrentScore = cloneScore(lite.CurrentScore)
	}
	if lite.FinalResult != nil && existing.FinalResult == nil {
		out.FinalResult = cloneFinalResult(lite.FinalResult)
	}
	if len(lite.Odds) > 0 {
		out.Odds = mergeDocument(existing.Odds, lite.Odds)
	}
	if len(lite.Prediction) > 0 {
		out.Prediction = mergeDocument(existing.Prediction, lite.Prediction)
	}
	if len(lite.PredictionV2) > 0 {
		out.PredictionV2 = mergeDocument(existing.PredictionV2, lite.PredictionV2)
	}

	out.LastSyncedAt = now
	out.UpdatedAt = now
	out.SyncCount = existing.SyncCount + 1
	finalize(&out)
	return out, nil
}

// FromLite creates the first record for a match only ever seen as a lite item.
func FromLite(lite LitePayload, now time.Time) (Match, error) {
	id := strings.TrimSpace(lite.MatchID)
	if !ValidMatchID(id) {
		return Match{}, ErrMissingIdentifier
	}

	seed := Match{
		MatchID:   id,
		Status:    StatusUpcoming,
		IsActive:  true,
		CreatedAt: now,
	}
	return MergeLiteWithExisting(lite, seed, now)
}

// Apply dispatches on the payload variant. existing may be nil.
func Apply(payload Payload, existing *Match, now time.Time) (Match, error) {
	switch p := payload.(type) {
	case FullPayload:
		return ApplyFull(p, existing, now)
	case LitePayload:
		if existing == nil {
			return FromLite(p, now)
		}
		return MergeLiteWithExisting(p, *existing, now)
	case nil:
		return Match{}, ErrMissingIdentifier
	default:
		return Match{}, fmt.Errorf("unsupported payload type %T", payload)
	}
}

// touchFinalized records a sync against a frozen record without changing its content.
func touchFinalized(existing Match, now time.Time) Match {
	out := existing
	out.CurrentScore = cloneScore(existing.CurrentScore)
	out.FinalResult = cloneFinalResult(existing.FinalResult)
	out.LastSyncedAt = now
	out.UpdatedAt = now
	out.SyncCount = existing.SyncCount + 1
	return out
}

func finalize(item *Match) {
	if item.Status == StatusFinished && item.FinalResult == nil && item.CurrentScore != nil {
		result := DeriveFinalResult(*item.CurrentScore)
		item.FinalResult = &result
	}
}

// mergeDocument deep merges incoming into current: objects merge key by key,
// nulls in incoming are ignored, anything else replaces.
func mergeDocument(current, incoming json.RawMessage) json.RawMessage {
	var next any
	if err := canonicalJSON.Unmarshal(incoming, &next); err != nil || next == nil {
		return current
	}

	var base any
	if len(current) > 0 {
		if err := canonicalJSON.Unmarshal(current, &base); err != nil {
			base = nil
		}
	}

	merged := mergeValue(base, next)
	raw, err := canonicalJSON.Marshal(merged)
	if err != nil {
		return current
	}
	return raw
}

func mergeValue(base, next any) any {
	nextObj, ok := next.(map[string]any)
	if !ok {
		return next
	}
	baseObj, ok := base.(map[string]any)
	if !ok {
		baseObj = map[string]any{}
	}

	out := make(map[string]any, len(baseObj)+len(nextObj))
	for key, value := range baseObj {
		out[key] = value
	}
	for key, value := range nextObj {
		if value == nil {
			continue
		}
		out[key] = mergeValue(out[key], value)
	}
	return out
}

func canonicalOrNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var value any
	if err := canonicalJSON.Unmarshal(raw, &value); err != nil || value == nil {
		return nil
	}
	out, err := canonicalJSON.Marshal(value)
	if err != nil {
		return nil
	}
	return out
}

func cloneScore(v *Score) *Score {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneFinalResult(v *FinalResult) *FinalResult {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func firstNonEmpty(values ...string) string {
	for _, item := range values {
		if strings.TrimSpace(item) != "" {
			return strings.TrimSpace(item)
		}
	}
	return ""
}
