package httpapi

import (
	"encoding/json"
	"time"

	"github.com/riskibarqy/match-sync/internal/domain/match"
	"github.com/riskibarqy/match-sync/internal/usecase"
)

type marketResponseDTO struct {
	Matches    []matchDTO            `json:"matches"`
	TotalCount int                   `json:"total_count"`
	Metadata   *usecase.SyncMetadata `json:"_metadata,omitempty"`
}

type matchResponseDTO struct {
	Match         *matchDTO              `json:"match"`
	QuickPurchase *usecase.QuickPurchase `json:"quickPurchase"`
	Metadata      *usecase.SyncMetadata  `json:"_metadata,omitempty"`
}

type matchDTO struct {
	MatchID       string             `json:"match_id"`
	Status        string             `json:"status"`
	KickoffAt     *time.Time         `json:"kickoff_at,omitempty"`
	LeagueID      string             `json:"league_id,omitempty"`
	LeagueName    string             `json:"league_name,omitempty"`
	HomeTeamID    string             `json:"home_team_id,omitempty"`
	HomeTeamName  string             `json:"home_team_name,omitempty"`
	AwayTeamID    string             `json:"away_team_id,omitempty"`
	AwayTeamName  string             `json:"away_team_name,omitempty"`
	Venue         string             `json:"venue,omitempty"`
	CurrentScore  *match.Score       `json:"current_score,omitempty"`
	FinalResult   *match.FinalResult `json:"final_result,omitempty"`
	Odds          json.RawMessage    `json:"odds,omitempty"`
	Predictions   json.RawMessage    `json:"predictions,omitempty"`
	PredictionsV2 json.RawMessage    `json:"predictions_v2,omitempty"`
	LastSyncedAt  *time.Time         `json:"last_synced_at,omitempty"`
	SyncCount     int64              `json:"sync_count"`
}

func toMatchDTO(item match.Match, includeV2 bool) matchDTO {
	out := matchDTO{
		MatchID:      item.MatchID,
		Status:       item.Status.Lower(),
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
		Predictions:  item.Prediction,
		SyncCount:    item.SyncCount,
	}
	if !item.KickoffAt.IsZero() {
		kickoff := item.KickoffAt.UTC()
		out.KickoffAt = &kickoff
	}
	if !item.LastSyncedAt.IsZero() {
		synced := item.LastSyncedAt.UTC()
		out.LastSyncedAt = &synced
	}
	if includeV2 {
		out.PredictionsV2 = item.PredictionV2
	}
	return out
}

func toMatchDTOs(items []match.Match, includeV2 bool) []matchDTO {
	out := make([]matchDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toMatchDTO(item, includeV2))
	}
	return out
}
