package predictions

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/riskibarqy/match-sync/internal/domain/match"
	"github.com/riskibarqy/match-sync/internal/usecase"
)

// Lookup paths in priority order. Dotted paths walk nested objects.
var (
	matchIDPaths      = []string{"match_id", "id", "matchId", "fixture_id"}
	scorePaths        = []string{"score", "live_score", "current_score", "result.score", "live.score"}
	statusPaths       = []string{"status", "state", "match_status"}
	kickoffPaths      = []string{"kickoff_at", "kickoff", "start_time", "date"}
	oddsPaths         = []string{"odds", "markets", "odds_snapshot"}
	predictionPaths   = []string{"predictions", "prediction", "ai_prediction"}
	predictionV2Paths = []string{"predictions_v2", "v2"}
	finalResultPaths  = []string{"final_result", "result.final"}
	leagueIDPaths     = []string{"league_id", "league.id"}
	leagueNamePaths   = []string{"league_name", "league.name", "league", "competition"}
	homeIDPaths       = []string{"home_team_id", "home.id", "teams.home.id"}
	homeNamePaths     = []string{"home_team", "home_team_name", "home.name", "teams.home.name"}
	awayIDPaths       = []string{"away_team_id", "away.id", "teams.away.id"}
	awayNamePaths     = []string{"away_team", "away_team_name", "away.name", "teams.away.name"}
	venuePaths        = []string{"venue", "venue.name", "stadium"}
)

var providerTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// firstNonNil returns the first non-nil value found at any of paths.
func firstNonNil(item map[string]any, paths ...string) (any, bool) {
	return resolve(item, func(v any) (any, bool) { return v, true }, paths...)
}

// resolve walks paths in order and returns the first value convert accepts.
func resolve[T any](item map[string]any, convert func(any) (T, bool), paths ...string) (T, bool) {
	var zero T
	for _, path := range paths {
		raw, ok := lookup(item, path)
		if !ok || raw == nil {
			continue
		}
		if value, ok := convert(raw); ok {
			return value, true
		}
	}
	return zero, false
}

func lookup(item map[string]any, path string) (any, bool) {
	var current any = item
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (c *Client) decodeItem(item map[string]any, mode usecase.SyncMode) (match.Payload, error) {
	matchID, ok := resolve(item, asID, matchIDPaths...)
	if !ok || !match.ValidMatchID(matchID) {
		return nil, match.ErrMissingIdentifier
	}

	lite := match.LitePayload{MatchID: matchID}
	if status, ok := resolve(item, asStatus, statusPaths...); ok {
		lite.Status = &status
	}
	if kickoff, ok := resolve(item, asTime, kickoffPaths...); ok {
		lite.KickoffAt = &kickoff
	}
	if score, ok := resolve(item, asScore, scorePaths...); ok {
		lite.CurrentScore = &score
	}
	if result, ok := resolve(item, asFinalResult, finalResultPaths...); ok {
		lite.FinalResult = &result
	}
	lite.Odds, _ = resolve(item, asDocument, oddsPaths...)
	lite.Prediction, _ = resolve(item, asDocument, predictionPaths...)
	lite.PredictionV2, _ = resolve(item, asDocument, predictionV2Paths...)

	if mode == usecase.SyncModeLite || lite.KickoffAt == nil {
		return lite, nil
	}

	full := match.FullPayload{
		MatchID:      matchID,
		Status:       match.StatusUpcoming,
		KickoffAt:    *lite.KickoffAt,
		LeagueID:     firstString(item, leagueIDPaths...),
		LeagueName:   firstString(item, leagueNamePaths...),
		HomeTeamID:   firstString(item, homeIDPaths...),
		HomeTeamName: firstString(item, homeNamePaths...),
		AwayTeamID:   firstString(item, awayIDPaths...),
		AwayTeamName: firstString(item, awayNamePaths...),
		Venue:        firstString(item, venuePaths...),
		CurrentScore: lite.CurrentScore,
		FinalResult:  lite.FinalResult,
		Odds:         lite.Odds,
		Prediction:   lite.Prediction,
		PredictionV2: lite.PredictionV2,
	}
	if lite.Status != nil {
		full.Status = *lite.Status
	}
	if err := c.validate.Struct(full); err != nil {
		return lite, nil
	}
	return full, nil
}

func firstString(item map[string]any, paths ...string) string {
	value, _ := resolve(item, asString, paths...)
	return value
}

func asString(raw any) (string, bool) {
	switch typed := raw.(type) {
	case string:
		value := strings.TrimSpace(typed)
		return value, value != ""
	case float64, int, int64, json.Number:
		return asID(typed)
	default:
		return "", false
	}
}

func asID(raw any) (string, bool) {
	switch typed := raw.(type) {
	case string:
		value := strings.TrimSpace(typed)
		return value, match.ValidMatchID(value)
	case float64:
		if typed != math.Trunc(typed) || math.IsInf(typed, 0) || math.IsNaN(typed) {
			return "", false
		}
		return strconv.FormatInt(int64(typed), 10), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case json.Number:
		return typed.String(), true
	default:
		return "", false
	}
}

func asStatus(raw any) (match.Status, bool) {
	switch typed := raw.(type) {
	case string:
		return match.ParseStatus(typed)
	case map[string]any:
		for _, key := range []string{"short", "code", "name", "state"} {
			if value, ok := typed[key].(string); ok {
				if status, ok := match.ParseStatus(value); ok {
					return status, true
				}
			}
		}
	}
	return "", false
}

func asTime(raw any) (time.Time, bool) {
	switch typed := raw.(type) {
	case string:
		value := strings.TrimSpace(typed)
		if value == "" {
			return time.Time{}, false
		}
		for _, layout := range providerTimeLayouts {
			if parsed, err := time.Parse(layout, value); err == nil {
				return parsed.UTC(), true
			}
		}
		if epoch, err := strconv.ParseInt(value, 10, 64); err == nil {
			return fromEpoch(epoch), true
		}
	case float64:
		if typed > 0 {
			return fromEpoch(int64(typed)), true
		}
	}
	return time.Time{}, false
}

// fromEpoch accepts seconds or milliseconds.
func fromEpoch(v int64) time.Time {
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func asScore(raw any) (match.Score, bool) {
	switch typed := raw.(type) {
	case map[string]any:
		home, okHome := asInt(firstPresent(typed, "home", "home_score", "localteam_score"))
		away, okAway := asInt(firstPresent(typed, "away", "away_score", "visitorteam_score"))
		if okHome && okAway {
			return match.Score{Home: home, Away: away}, true
		}
	case []any:
		if len(typed) == 2 {
			home, okHome := asInt(typed[0])
			away, okAway := asInt(typed[1])
			if okHome && okAway {
				return match.Score{Home: home, Away: away}, true
			}
		}
	case string:
		for _, sep := range []string{"-", ":"} {
			parts := strings.Split(typed, sep)
			if len(parts) != 2 {
				continue
			}
			home, errHome := strconv.Atoi(strings.TrimSpace(parts[0]))
			away, errAway := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errHome == nil && errAway == nil {
				return match.Score{Home: home, Away: away}, true
			}
		}
	}
	return match.Score{}, false
}

func asFinalResult(raw any) (match.FinalResult, bool) {
	typed, ok := raw.(map[string]any)
	if !ok {
		return match.FinalResult{}, false
	}
	scoreRaw, ok := typed["score"]
	if !ok {
		return match.FinalResult{}, false
	}
	score, ok := asScore(scoreRaw)
	if !ok {
		return match.FinalResult{}, false
	}

	derived := match.DeriveFinalResult(score)
	if outcome, ok := typed["outcome"].(string); ok && strings.TrimSpace(outcome) != "" {
		derived.Outcome = strings.ToLower(strings.TrimSpace(outcome))
	}
	if text, ok := typed["outcome_text"].(string); ok && strings.TrimSpace(text) != "" {
		derived.OutcomeText = strings.TrimSpace(text)
	}
	return derived, true
}

// asDocument keeps objects and arrays as raw JSON.
func asDocument(raw any) (json.RawMessage, bool) {
	switch raw.(type) {
	case map[string]any, []any:
	default:
		return nil, false
	}
	out, err := sonic.Marshal(raw)
	if err != nil {
		return nil, false
	}
	return out, true
}

func asInt(raw any) (int, bool) {
	switch typed := raw.(type) {
	case float64:
		return int(typed), true
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case json.Number:
		v, err := typed.Int64()
		return int(v), err == nil
	case string:
		v, err := strconv.Atoi(strings.TrimSpace(typed))
		return v, err == nil
	default:
		return 0, false
	}
}

func firstPresent(src map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := src[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func describeItem(item map[string]any) string {
	id, _ := firstNonNil(item, matchIDPaths...)
	return fmt.Sprintf("match_id=%v", id)
}
