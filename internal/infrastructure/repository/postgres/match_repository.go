package postgres

import (
	"context"
	"fmt"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"

	"github.com/riskibarqy/match-sync/internal/domain/match"
	qb "github.com/riskibarqy/match-sync/internal/platform/querybuilder"
)

const matchUpsertSuffix = `ON CONFLICT (match_id)
DO UPDATE SET
    status = CASE
        WHEN (CASE EXCLUDED.status WHEN 'FINISHED' THEN 3 WHEN 'LIVE' THEN 2 ELSE 1 END)
           >= (CASE matches.status WHEN 'FINISHED' THEN 3 WHEN 'LIVE' THEN 2 ELSE 1 END)
        THEN EXCLUDED.status
        ELSE matches.status
    END,
    kickoff_at = COALESCE(EXCLUDED.kickoff_at, matches.kickoff_at),
    league_id = COALESCE(EXCLUDED.league_id, matches.league_id),
    league_name = COALESCE(EXCLUDED.league_name, matches.league_name),
    home_team_id = COALESCE(EXCLUDED.home_team_id, matches.home_team_id),
    home_team_name = COALESCE(EXCLUDED.home_team_name, matches.home_team_name),
    away_team_id = COALESCE(EXCLUDED.away_team_id, matches.away_team_id),
    away_team_name = COALESCE(EXCLUDED.away_team_name, matches.away_team_name),
    venue = COALESCE(EXCLUDED.venue, matches.venue),
    current_score = CASE
        WHEN matches.final_result IS NOT NULL THEN matches.current_score
        ELSE COALESCE(EXCLUDED.current_score, matches.current_score)
    END,
    final_result = COALESCE(matches.final_result, EXCLUDED.final_result),
    odds = COALESCE(EXCLUDED.odds, matches.odds),
    prediction = COALESCE(EXCLUDED.prediction, matches.prediction),
    prediction_v2 = COALESCE(EXCLUDED.prediction_v2, matches.prediction_v2),
    last_synced_at = EXCLUDED.last_synced_at,
    is_active = EXCLUDED.is_active,
    is_archived = EXCLUDED.is_archived,
    sync_count = EXCLUDED.sync_count,
    updated_at = EXCLUDED.updated_at`

type MatchRepository struct {
	db *sqlx.DB
}

func NewMatchRepository(db *sqlx.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) Get(ctx context.Context, matchID string) (match.Match, bool, error) {
	query, args, err := qb.Select(matchColumns...).From("matches").
		Where(qb.Eq("match_id", matchID)).
		Limit(1).
		ToSQL()
	if err != nil {
		return match.Match{}, false, fmt.Errorf("build select match query: %w", err)
	}

	var row matchTableModel
	err = r.db.GetContext(ctx, &row, query, args...)
	if shouldRetryStatement(err) {
		err = r.db.GetContext(ctx, &row, query, args...)
	}
	if err != nil {
		if isNotFound(err) {
			return match.Match{}, false, nil
		}
		return match.Match{}, false, fmt.Errorf("select match %s: %w", matchID, err)
	}

	item, err := matchFromRow(row)
	if err != nil {
		return match.Match{}, false, err
	}
	return item, true, nil
}

func (r *MatchRepository) List(ctx context.Context, filter match.ListFilter) ([]match.Match, error) {
	query, args, err := buildListMatchesQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("build select matches query: %w", err)
	}

	var rows []matchTableModel
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if shouldRetryStatement(err) {
		rows = nil
		err = r.db.SelectContext(ctx, &rows, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("select matches: %w", err)
	}

	out := make([]match.Match, 0, len(rows))
	for _, row := range rows {
		item, err := matchFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *MatchRepository) Upsert(ctx context.Context, item match.Match) error {
	model, err := rowFromMatch(item)
	if err != nil {
		return err
	}

	query, args, err := qb.InsertModel("matches", model, matchUpsertSuffix)
	if err != nil {
		return fmt.Errorf("build upsert match query: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	if shouldRetryStatement(err) {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("upsert match %s: %w", item.MatchID, err)
	}
	return nil
}

func buildListMatchesQuery(filter match.ListFilter) (string, []any, error) {
	conditions := make([]qb.Condition, 0, 6)
	if len(filter.Statuses) > 0 {
		statuses := make([]any, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		conditions = append(conditions, qb.In("status", statuses))
	}
	if filter.LeagueID != "" {
		conditions = append(conditions, qb.Eq("league_id", filter.LeagueID))
	}
	if filter.MatchID != "" {
		conditions = append(conditions, qb.Eq("match_id", filter.MatchID))
	}
	if filter.KickoffAfter != nil {
		conditions = append(conditions, qb.Expr("kickoff_at >= ?", filter.KickoffAfter.UTC()))
	}
	if !filter.IncludeArchived {
		conditions = append(conditions, qb.Eq("is_active", true), qb.Eq("is_archived", false))
	}

	return qb.Select(matchColumns...).From("matches").
		Where(conditions...).
		OrderBy("kickoff_at NULLS LAST", "match_id").
		Limit(filter.Limit).
		ToSQL()
}

func rowFromMatch(item match.Match) (matchTableModel, error) {
	currentScore, err := marshalOptional(item.CurrentScore)
	if err != nil {
		return matchTableModel{}, fmt.Errorf("marshal current score for match %s: %w", item.MatchID, err)
	}
	finalResult, err := marshalOptional(item.FinalResult)
	if err != nil {
		return matchTableModel{}, fmt.Errorf("marshal final result for match %s: %w", item.MatchID, err)
	}

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = item.UpdatedAt
	}
	updatedAt := item.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	return matchTableModel{
		MatchID:      item.MatchID,
		Status:       string(item.Status),
		KickoffAt:    optionalTime(item.KickoffAt),
		LeagueID:     nullableString(item.LeagueID),
		LeagueName:   nullableString(item.LeagueName),
		HomeTeamID:   nullableString(item.HomeTeamID),
		HomeTeamName: nullableString(item.HomeTeamName),
		AwayTeamID:   nullableString(item.AwayTeamID),
		AwayTeamName: nullableString(item.AwayTeamName),
		Venue:        nullableString(item.Venue),
		CurrentScore: currentScore,
		FinalResult:  finalResult,
		Odds:         jsonColumn(item.Odds),
		Prediction:   jsonColumn(item.Prediction),
		PredictionV2: jsonColumn(item.PredictionV2),
		LastSyncedAt: optionalTime(item.LastSyncedAt),
		IsActive:     item.IsActive,
		IsArchived:   item.IsArchived,
		SyncCount:    item.SyncCount,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func matchFromRow(row matchTableModel) (match.Match, error) {
	item := match.Match{
		MatchID:      row.MatchID,
		Status:       match.Status(row.Status),
		LeagueID:     stringValue(row.LeagueID),
		LeagueName:   stringValue(row.LeagueName),
		HomeTeamID:   stringValue(row.HomeTeamID),
		HomeTeamName: stringValue(row.HomeTeamName),
		AwayTeamID:   stringValue(row.AwayTeamID),
		AwayTeamName: stringValue(row.AwayTeamName),
		Venue:        stringValue(row.Venue),
		Odds:         jsonValue(row.Odds),
		Prediction:   jsonValue(row.Prediction),
		PredictionV2: jsonValue(row.PredictionV2),
		IsActive:     row.IsActive,
		IsArchived:   row.IsArchived,
		SyncCount:    row.SyncCount,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.KickoffAt != nil {
		item.KickoffAt = row.KickoffAt.UTC()
	}
	if row.LastSyncedAt != nil {
		item.LastSyncedAt = row.LastSyncedAt.UTC()
	}

	if row.CurrentScore != nil {
		var score match.Score
		if err := sonic.UnmarshalString(*row.CurrentScore, &score); err != nil {
			return match.Match{}, fmt.Errorf("decode current score for match %s: %w", row.MatchID, err)
		}
		item.CurrentScore = &score
	}
	if row.FinalResult != nil {
		var result match.FinalResult
		if err := sonic.UnmarshalString(*row.FinalResult, &result); err != nil {
			return match.Match{}, fmt.Errorf("decode final result for match %s: %w", row.MatchID, err)
		}
		item.FinalResult = &result
	}
	return item, nil
}

func marshalOptional[T any](value *T) (*string, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := sonic.MarshalString(value)
	if err != nil {
		return nil, err
	}
	return &raw, nil
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	v := value.UTC()
	return &v
}

var _ match.Repository = (*MatchRepository)(nil)
