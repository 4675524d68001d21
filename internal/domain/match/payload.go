package match

import (
	"encoding/json"
	"time"
)

// Payload is an upstream item validated at the boundary. It is either a
// LitePayload or a FullPayload; no other implementations exist.
type Payload interface {
	Key() string
	isPayload()
}

// LitePayload carries only the fast-changing fields. Nil or empty fields are absent.
type LitePayload struct {
	MatchID      string
	Status       *Status
	KickoffAt    *time.Time
	CurrentScore *Score
	FinalResult  *FinalResult
	Odds         json.RawMessage
	Prediction   json.RawMessage
	PredictionV2 json.RawMessage
}

// FullPayload is sufficient to rebuild a Match from scratch.
type FullPayload struct {
	MatchID      string    `validate:"required"`
	Status       Status    `validate:"required,oneof=UPCOMING LIVE FINISHED"`
	KickoffAt    time.Time `validate:"required"`
	LeagueID     string
	LeagueName   string
	HomeTeamID   string
	HomeTeamName string `validate:"required"`
	AwayTeamID   string
	AwayTeamName string `validate:"required"`
	Venue        string
	CurrentScore *Score
	FinalResult  *FinalResult
	Odds         json.RawMessage
	Prediction   json.RawMessage
	PredictionV2 json.RawMessage
}

func (p LitePayload) Key() string { return p.MatchID }
func (p FullPayload) Key() string { return p.MatchID }

func (LitePayload) isPayload() {}
func (FullPayload) isPayload() {}
