package postgres

import "time"

type matchTableModel struct {
	MatchID      string     `db:"match_id"`
	Status       string     `db:"status"`
	KickoffAt    *time.Time `db:"kickoff_at"`
	LeagueID     *string    `db:"league_id"`
	LeagueName   *string    `db:"league_name"`
	HomeTeamID   *string    `db:"home_team_id"`
	HomeTeamName *string    `db:"home_team_name"`
	AwayTeamID   *string    `db:"away_team_id"`
	AwayTeamName *string    `db:"away_team_name"`
	Venue        *string    `db:"venue"`
	CurrentScore *string    `db:"current_score"`
	FinalResult  *string    `db:"final_result"`
	Odds         *string    `db:"odds"`
	Prediction   *string    `db:"prediction"`
	PredictionV2 *string    `db:"prediction_v2"`
	LastSyncedAt *time.Time `db:"last_synced_at"`
	IsActive     bool       `db:"is_active"`
	IsArchived   bool       `db:"is_archived"`
	SyncCount    int64      `db:"sync_count"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

var matchColumns = []string{
	"match_id",
	"status",
	"kickoff_at",
	"league_id",
	"league_name",
	"home_team_id",
	"home_team_name",
	"away_team_id",
	"away_team_name",
	"venue",
	"current_score::text AS current_score",
	"final_result::text AS final_result",
	"odds::text AS odds",
	"prediction::text AS prediction",
	"prediction_v2::text AS prediction_v2",
	"last_synced_at",
	"is_active",
	"is_archived",
	"sync_count",
	"created_at",
	"updated_at",
}
