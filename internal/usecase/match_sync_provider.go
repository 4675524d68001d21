package usecase

import (
	"context"
	"strconv"
	"strings"

	"github.com/riskibarqy/match-sync/internal/domain/match"
)

type SyncMode string

const (
	SyncModeLite SyncMode = "lite"
	SyncModeFull SyncMode = "full"
)

func ParseSyncMode(raw string) (SyncMode, bool) {
	switch SyncMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SyncModeFull:
		return SyncModeFull, true
	case SyncModeLite:
		return SyncModeLite, true
	default:
		return "", false
	}
}

// MatchSyncProvider is the upstream prediction/odds service.
type MatchSyncProvider interface {
	FetchMatch(ctx context.Context, matchID string, mode SyncMode) (match.Payload, error)
	FetchMarket(ctx context.Context, query MarketQuery) (MarketBatch, error)
}

// QuickPurchaseProvider resolves the purchasable tip offer attached to a match.
// A nil offer means nothing is on sale.
type QuickPurchaseProvider interface {
	QuickPurchase(ctx context.Context, matchID string) (*QuickPurchase, error)
}

type QuickPurchase struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
}

type MarketQuery struct {
	Status    match.Status
	MatchID   string
	LeagueID  string
	Limit     int
	Mode      SyncMode
	IncludeV2 bool
}

// Key identifies equivalent upstream list requests.
func (q MarketQuery) Key() string {
	parts := []string{
		"status=" + string(q.Status),
		"match=" + q.MatchID,
		"league=" + q.LeagueID,
		"limit=" + strconv.Itoa(q.Limit),
		"mode=" + string(q.Mode),
	}
	return strings.Join(parts, "&")
}

type MarketBatch struct {
	Items      []match.Payload
	TotalCount int
	// Skipped counts upstream items dropped at the boundary, e.g. for a missing id.
	Skipped int
}
