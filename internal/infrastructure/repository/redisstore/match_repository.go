// Package redisstore keeps match records in Redis: one JSON document per match
// plus a sorted set per status scored by kickoff time.
package redisstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/riskibarqy/match-sync/internal/domain/match"
)

const (
	defaultKeyPrefix = "matchsync"
	maxUpsertRetries = 3
)

var allStatuses = []match.Status{match.StatusUpcoming, match.StatusLive, match.StatusFinished}

type MatchRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewMatchRepository(client redis.UniversalClient, prefix string) *MatchRepository {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &MatchRepository{client: client, prefix: prefix}
}

func (r *MatchRepository) matchKey(matchID string) string {
	return r.prefix + ":match:" + matchID
}

func (r *MatchRepository) statusKey(status match.Status) string {
	return r.prefix + ":matches:status:" + string(status)
}

func (r *MatchRepository) Get(ctx context.Context, matchID string) (match.Match, bool, error) {
	raw, err := r.client.Get(ctx, r.matchKey(strings.TrimSpace(matchID))).Result()
	if stderrors.Is(err, redis.Nil) {
		return match.Match{}, false, nil
	}
	if err != nil {
		return match.Match{}, false, fmt.Errorf("get match %s: %w", matchID, err)
	}

	item, err := decodeMatch(raw)
	if err != nil {
		return match.Match{}, false, fmt.Errorf("decode match %s: %w", matchID, err)
	}
	return item, true, nil
}

func (r *MatchRepository) List(ctx context.Context, filter match.ListFilter) ([]match.Match, error) {
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = allStatuses
	}

	minScore := "-inf"
	if filter.KickoffAfter != nil {
		minScore = strconv.FormatInt(filter.KickoffAfter.UTC().UnixMilli(), 10)
	}

	var ids []string
	if filter.MatchID != "" {
		ids = []string{filter.MatchID}
	} else {
		for _, status := range statuses {
			members, err := r.client.ZRangeByScore(ctx, r.statusKey(status), &redis.ZRangeBy{
				Min: minScore,
				Max: "+inf",
			}).Result()
			if err != nil {
				return nil, fmt.Errorf("list %s match ids: %w", status, err)
			}
			ids = append(ids, members...)
		}
	}
	if len(ids) == 0 {
		return []match.Match{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.matchKey(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}

	out := make([]match.Match, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		item, err := decodeMatch(raw)
		if err != nil {
			return nil, fmt.Errorf("decode match %s: %w", ids[i], err)
		}
		if filter.Matches(item) {
			out = append(out, item)
		}
	}

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

// Upsert writes the document and moves the id into its status index in one
// transaction. A stored final result always survives the write.
func (r *MatchRepository) Upsert(ctx context.Context, item match.Match) error {
	key := r.matchKey(item.MatchID)

	txf := func(tx *redis.Tx) error {
		next := item
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case stderrors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			existing, err := decodeMatch(raw)
			if err != nil {
				return err
			}
			next.Status = existing.Status.Advance(next.Status)
			if existing.FinalResult != nil {
				next.FinalResult = existing.FinalResult
				next.CurrentScore = existing.CurrentScore
			}
			if next.CreatedAt.IsZero() {
				next.CreatedAt = existing.CreatedAt
			}
		}

		doc, err := encodeMatch(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			for _, status := range allStatuses {
				if status == next.Status {
					continue
				}
				pipe.ZRem(ctx, r.statusKey(status), next.MatchID)
			}
			if next.Status.Valid() {
				pipe.ZAdd(ctx, r.statusKey(next.Status), redis.Z{
					Score:  kickoffScore(next.KickoffAt),
					Member: next.MatchID,
				})
			}
			return nil
		})
		return err
	}

	var err error
	for range maxUpsertRetries {
		err = r.client.Watch(ctx, txf, key)
		if !stderrors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("upsert match %s: %w", item.MatchID, err)
	}
	return nil
}

func kickoffScore(kickoff time.Time) float64 {
	if kickoff.IsZero() {
		return 0
	}
	return float64(kickoff.UTC().UnixMilli())
}

type storedMatch struct {
	MatchID      string             `json:"match_id"`
	Status       match.Status       `json:"status"`
	KickoffAt    *time.Time         `json:"kickoff_at,omitempty"`
	LeagueID     string             `json:"league_id,omitempty"`
	LeagueName   string             `json:"league_name,omitempty"`
	HomeTeamID   string             `json:"home_team_id,omitempty"`
	HomeTeamName string             `json:"home_team_name,omitempty"`
	AwayTeamID   string             `json:"away_team_id,omitempty"`
	AwayTeamName string             `json:"away_team_name,omitempty"`
	Venue        string             `json:"venue,omitempty"`
	CurrentScore *match.Score       `json:"current_score,omitempty"`
	FinalResult  *match.FinalResult `json:"final_result,omitempty"`
	Odds         json.RawMessage    `json:"odds,omitempty"`
	Prediction   json.RawMessage    `json:"prediction,omitempty"`
	PredictionV2 json.RawMessage    `json:"prediction_v2,omitempty"`
	LastSyncedAt *time.Time         `json:"last_synced_at,omitempty"`
	IsActive     bool               `json:"is_active"`
	IsArchived   bool               `json:"is_archived"`
	SyncCount    int64              `json:"sync_count"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func encodeMatch(item match.Match) (string, error) {
	doc := storedMatch{
		MatchID:      item.MatchID,
		Status:       item.Status,
		KickoffAt:    optionalTime(item.KickoffAt),
		LeagueID:     item.LeagueID,
		LeagueName:   item.LeagueName,
		HomeTeamID:   item.HomeTeamID,
		HomeTeamName: item.HomeTeamName,
		AwayTeamID:   item.AwayTeamID,
		AwayTeamName: item.AwayTeamName,
		Venue:        item.Venue,
		CurrentScore: item.CurrentScore,
		FinalResult:  item.FinalResult,
		Odds:         item.Odds,
		Prediction:   item.Prediction,
		PredictionV2: item.PredictionV2,
		LastSyncedAt: optionalTime(item.LastSyncedAt),
		IsActive:     item.IsActive,
		IsArchived:   item.IsArchived,
		SyncCount:    item.SyncCount,
		CreatedAt:    item.CreatedAt.UTC(),
		UpdatedAt:    item.UpdatedAt.UTC(),
	}
	return sonic.MarshalString(doc)
}

func decodeMatch(raw string) (match.Match, error) {
	var doc storedMatch
	if err := sonic.UnmarshalString(raw, &doc); err != nil {
		return match.Match{}, err
	}

	item := match.Match{
		MatchID:      doc.MatchID,
		Status:       doc.Status,
		LeagueID:     doc.LeagueID,
		LeagueName:   doc.LeagueName,
		HomeTeamID:   doc.HomeTeamID,
		HomeTeamName: doc.HomeTeamName,
		AwayTeamID:   doc.AwayTeamID,
		AwayTeamName: doc.AwayTeamName,
		Venue:        doc.Venue,
		CurrentScore: doc.CurrentScore,
		FinalResult:  doc.FinalResult,
		Odds:         doc.Odds,
		Prediction:   doc.Prediction,
		PredictionV2: doc.PredictionV2,
		IsActive:     doc.IsActive,
		IsArchived:   doc.IsArchived,
		SyncCount:    doc.SyncCount,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
	if doc.KickoffAt != nil {
		item.KickoffAt = doc.KickoffAt.UTC()
	}
	if doc.LastSyncedAt != nil {
		item.LastSyncedAt = doc.LastSyncedAt.UTC()
	}
	return item, nil
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	v := value.UTC()
	return &v
}

var _ match.Repository = (*MatchRepository)(nil)
