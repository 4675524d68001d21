package match

import (
	"encoding/json"
	"strings"
	"time"
)

type Status string

const (
	StatusUpcoming Status = "UPCOMING"
	StatusLive     Status = "LIVE"
	StatusFinished Status = "FINISHED"
)

const (
	OutcomeHome = "home"
	OutcomeAway = "away"
	OutcomeDraw = "draw"
)

// Match is the persisted system of record for one external match.
type Match struct {
	MatchID      string
	Status       Status
	KickoffAt    time.Time
	LeagueID     string
	LeagueName   string
	HomeTeamID   string
	HomeTeamName string
	AwayTeamID   string
	AwayTeamName string
	Venue        string
	CurrentScore *Score
	FinalResult  *FinalResult
	Odds         json.RawMessage
	Prediction   json.RawMessage
	PredictionV2 json.RawMessage
	LastSyncedAt time.Time
	IsActive     bool
	IsArchived   bool
	SyncCount    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

type FinalResult struct {
	Score       Score  `json:"score"`
	Outcome     string `json:"outcome"`
	OutcomeText string `json:"outcome_text"`
}

// ParseStatus maps provider and query vocabulary onto the three lifecycle states.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "UPCOMING", "NS", "SCHEDULED", "TBD", "NOT_STARTED", "PRE_MATCH":
		return StatusUpcoming, true
	case "LIVE", "IN_PLAY", "INPLAY", "1H", "2H", "HT", "ET", "P", "BREAK":
		return StatusLive, true
	case "FINISHED", "FT", "AET", "PEN", "ENDED", "COMPLETED", "FULL_TIME":
		return StatusFinished, true
	default:
		return "", false
	}
}

func (s Status) Valid() bool {
	return s.rank() > 0
}

func (s Status) rank() int {
	switch s {
	case StatusUpcoming:
		return 1
	case StatusLive:
		return 2
	case StatusFinished:
		return 3
	default:
		return 0
	}
}

// Advance returns the later of the two statuses; lifecycle transitions never regress.
func (s Status) Advance(next Status) Status {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

func (s Status) Lower() string {
	return strings.ToLower(string(s))
}

func (m Match) IsFinalized() bool {
	return m.Status == StatusFinished && m.FinalResult != nil
}

// DeriveFinalResult builds the final result for a finished score.
func DeriveFinalResult(score Score) FinalResult {
	out := FinalResult{Score: score}
	switch {
	case score.Home > score.Away:
		out.Outcome = OutcomeHome
		out.OutcomeText = "Home Win"
	case score.Away > score.Home:
		out.Outcome = OutcomeAway
		out.OutcomeText = "Away Win"
	default:
		out.Outcome = OutcomeDraw
		out.OutcomeText = "Draw"
	}
	return out
}

// ValidMatchID rejects empty ids and the sentinel strings upstream feeds emit for missing values.
func ValidMatchID(id string) bool {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "", "null", "undefined", "nil", "none":
		return false
	default:
		return true
	}
}
