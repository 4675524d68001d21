package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc/panics"

	"github.com/riskibarqy/match-sync/internal/domain/match"
	"github.com/riskibarqy/match-sync/internal/platform/logging"
	"github.com/riskibarqy/match-sync/internal/platform/resilience"
)

const (
	ErrorTypeTimeout     = "api_timeout"
	ErrorTypeHTTP        = "api_http_error"
	ErrorTypeTransport   = "api_transport_error"
	ErrorTypeCircuitOpen = "circuit_open"
	ErrorTypePersistence = "persistence_error"
	ErrorTypeEmpty       = "upstream_empty"

	FallbackStaleData     = "stale_data"
	FallbackEmergencyRead = "emergency_read"
	FallbackNoData        = "no_data_available"

	SourceStore     = "database"
	SourceUpstream  = "api"
	SourceEmergency = "emergency"
	SourceNone      = "none"
)

const (
	defaultUpstreamBudget  = 8 * time.Second
	defaultFallbackTimeout = 3 * time.Second
	defaultPersistWorkers  = 8
	defaultMarketLimit     = 50
	defaultMaxMarketLimit  = 200
)

type MatchSyncConfig struct {
	Freshness match.FreshnessPolicy
	// UpstreamBudget bounds the whole upstream call including retries.
	UpstreamBudget time.Duration
	// FallbackTimeout bounds fallback reads and persistence writes, which run
	// detached from the caller's context.
	FallbackTimeout time.Duration
	// UpcomingGrace keeps recently kicked-off matches in upcoming listings.
	// Zero means no grace.
	UpcomingGrace   time.Duration
	PersistWorkers  int
	DefaultLimit    int
	MaxLimit        int
}

func normalizeMatchSyncConfig(cfg MatchSyncConfig) MatchSyncConfig {
	if cfg.UpstreamBudget <= 0 {
		cfg.UpstreamBudget = defaultUpstreamBudget
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = defaultFallbackTimeout
	}
	if cfg.UpcomingGrace < 0 {
		cfg.UpcomingGrace = 0
	}
	if cfg.PersistWorkers <= 0 {
		cfg.PersistWorkers = defaultPersistWorkers
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = defaultMaxMarketLimit
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultMarketLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	return cfg
}

// SyncMetadata describes how a response was produced when it is not a plain
// fresh read.
type SyncMetadata struct {
	Stale          bool       `json:"stale"`
	Source         string     `json:"source"`
	ErrorType      string     `json:"errorType,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	FallbackReason string     `json:"fallbackReason,omitempty"`
	LastSyncTime   *time.Time `json:"lastSyncTime,omitempty"`
	AgeSeconds     *int64     `json:"ageSeconds,omitempty"`
}

type MatchResult struct {
	// Match is nil when no tier could resolve the id.
	Match         *match.Match
	QuickPurchase *QuickPurchase
	Metadata      *SyncMetadata
	CacheControl  string
}

// Resolved reports whether the result carries anything worth returning to a caller.
func (r MatchResult) Resolved() bool {
	return r.Match != nil || r.QuickPurchase != nil
}

type MarketResult struct {
	Matches      []match.Match
	TotalCount   int
	IncludeV2    bool
	Metadata     *SyncMetadata
	CacheControl string
}

// MatchSyncService decides per request whether to serve persisted data, resync
// from the upstream provider, or degrade to stale data.
type MatchSyncService struct {
	repo     match.Repository
	provider MatchSyncProvider
	quick    QuickPurchaseProvider
	pool     *ants.Pool
	cfg      MatchSyncConfig
	logger   *logging.Logger
	now      func() time.Time

	matchFlight  resilience.SingleFlight
	marketFlight resilience.SingleFlight
}

func NewMatchSyncService(
	repo match.Repository,
	provider MatchSyncProvider,
	quick QuickPurchaseProvider,
	cfg MatchSyncConfig,
	logger *logging.Logger,
) (*MatchSyncService, error) {
	if repo == nil || provider == nil {
		return nil, fmt.Errorf("%w: match sync requires a repository and an upstream provider", ErrDependencyUnavailable)
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg = normalizeMatchSyncConfig(cfg)
	pool, err := ants.NewPool(cfg.PersistWorkers)
	if err != nil {
		return nil, fmt.Errorf("create persistence worker pool: %w", err)
	}

	return &MatchSyncService{
		repo:     repo,
		provider: provider,
		quick:    quick,
		pool:     pool,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Close releases the persistence workers.
func (s *MatchSyncService) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Release()
}

// NormalizeMarketQuery applies defaults and rejects values outside the accepted ranges.
func (s *MatchSyncService) NormalizeMarketQuery(query MarketQuery) (MarketQuery, error) {
	query.LeagueID = strings.TrimSpace(query.LeagueID)
	query.MatchID = strings.TrimSpace(query.MatchID)
	if query.Status != "" && !query.Status.Valid() {
		return MarketQuery{}, fmt.Errorf("%w: unsupported status %q", ErrInvalidInput, query.Status)
	}
	if query.MatchID != "" && !match.ValidMatchID(query.MatchID) {
		return MarketQuery{}, fmt.Errorf("%w: invalid match_id %q", ErrInvalidInput, query.MatchID)
	}
	switch query.Mode {
	case "":
		query.Mode = SyncModeFull
	case SyncModeFull, SyncModeLite:
	default:
		return MarketQuery{}, fmt.Errorf("%w: unsupported mode %q", ErrInvalidInput, query.Mode)
	}
	switch {
	case query.Limit < 0:
		return MarketQuery{}, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	case query.Limit == 0:
		query.Limit = s.cfg.DefaultLimit
	case query.Limit > s.cfg.MaxLimit:
		return MarketQuery{}, fmt.Errorf("%w: limit must be at most %d", ErrInvalidInput, s.cfg.MaxLimit)
	}
	return query, nil
}

func (s *MatchSyncService) GetMatch(ctx context.Context, matchID string) (MatchResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.MatchSyncService.GetMatch")
	defer span.End()

	matchID = strings.TrimSpace(matchID)
	if !match.ValidMatchID(matchID) {
		return MatchResult{}, fmt.Errorf("%w: match id is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	existing, found, readErr := s.repo.Get(ctx, matchID)
	if readErr != nil {
		s.logger.WarnContext(ctx, "read persisted match failed", "match_id", matchID, "error", readErr)
		found = false
	}

	if found && !s.cfg.Freshness.IsTooOld(existing, now) {
		return s.withQuickPurchase(ctx, matchID, MatchResult{
			Match:        &existing,
			CacheControl: match.CacheControlFor(existing.Status),
		}), nil
	}

	var existingPtr *match.Match
	if found {
		existingPtr = &existing
	}

	value, upstreamErr, _ := s.matchFlight.DoContext(ctx, matchID, func() (any, error) {
		return s.syncMatch(ctx, matchID, existingPtr)
	})
	if upstreamErr == nil {
		synced, _ := value.(match.Match)
		return s.withQuickPurchase(ctx, matchID, MatchResult{
			Match:        &synced,
			CacheControl: match.CacheControlFor(synced.Status),
		}), nil
	}

	errorType := classifyUpstreamError(upstreamErr)
	s.logger.WarnContext(ctx, "match upstream sync failed",
		"match_id", matchID,
		"error_type", errorType,
		"error", upstreamErr,
	)

	if found {
		meta := s.degradedMetadata(now, []match.Match{existing}, SourceStore, FallbackStaleData, errorType, upstreamErr)
		return s.withQuickPurchase(ctx, matchID, MatchResult{
			Match:        &existing,
			Metadata:     meta,
			CacheControl: match.CacheControlNoStore,
		}), nil
	}

	// Only a failed first read justifies another attempt against the store.
	if readErr != nil {
		fallbackCtx, cancel := s.fallbackContext(ctx)
		item, ok, err := s.repo.Get(fallbackCtx, matchID)
		cancel()
		if err != nil {
			s.logger.WarnContext(ctx, "emergency match read failed", "match_id", matchID, "error", err)
		}
		if ok {
			meta := s.degradedMetadata(now, []match.Match{item}, SourceEmergency, FallbackEmergencyRead, errorType, upstreamErr)
			return s.withQuickPurchase(ctx, matchID, MatchResult{
				Match:        &item,
				Metadata:     meta,
				CacheControl: match.CacheControlNoStore,
			}), nil
		}
		if errors.Is(upstreamErr, ErrUpstreamEmpty) {
			errorType = ErrorTypePersistence
		}
	}

	return s.withQuickPurchase(ctx, matchID, MatchResult{
		Metadata: &SyncMetadata{
			Source:         SourceNone,
			ErrorType:      errorType,
			ErrorMessage:   upstreamErr.Error(),
			FallbackReason: FallbackNoData,
		},
		CacheControl: match.CacheControlNoStore,
	}), nil
}

func (s *MatchSyncService) syncMatch(ctx context.Context, matchID string, existing *match.Match) (match.Match, error) {
	upstreamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UpstreamBudget)
	defer cancel()

	payload, err := s.provider.FetchMatch(upstreamCtx, matchID, SyncModeFull)
	if err != nil {
		return match.Match{}, err
	}

	merged, err := match.Apply(payload, existing, s.now().UTC())
	if err != nil {
		return match.Match{}, fmt.Errorf("%w: %w", ErrUpstreamEmpty, err)
	}

	persistCtx, cancelPersist := s.fallbackContext(ctx)
	defer cancelPersist()
	if err := s.repo.Upsert(persistCtx, merged); err != nil {
		s.logger.ErrorContext(ctx, "persist synced match failed", "match_id", matchID, "error", err)
	}
	return merged, nil
}

func (s *MatchSyncService) withQuickPurchase(ctx context.Context, matchID string, result MatchResult) MatchResult {
	if s.quick == nil {
		return result
	}

	quickCtx, cancel := s.fallbackContext(ctx)
	defer cancel()
	offer, err := s.quick.QuickPurchase(quickCtx, matchID)
	if err != nil {
		s.logger.WarnContext(ctx, "quick purchase lookup failed", "match_id", matchID, "error", err)
		return result
	}
	result.QuickPurchase = offer
	return result
}

func (s *MatchSyncService) ListMarket(ctx context.Context, query MarketQuery) (MarketResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.MatchSyncService.ListMarket")
	defer span.End()

	query, err := s.NormalizeMarketQuery(query)
	if err != nil {
		return MarketResult{}, err
	}

	now := s.now().UTC()
	filter := match.ListFilter{
		LeagueID: query.LeagueID,
		MatchID:  query.MatchID,
		Limit:    query.Limit,
	}
	if query.Status != "" {
		filter.Statuses = []match.Status{query.Status}
	}
	if query.Status == match.StatusUpcoming {
		after := now.Add(-s.cfg.UpcomingGrace)
		filter.KickoffAfter = &after
	}

	records, readErr := s.repo.List(ctx, filter)
	if readErr != nil {
		s.logger.WarnContext(ctx, "read persisted matches failed", "query", query.Key(), "error", readErr)
		records = nil
	}
	records = match.DedupeMatches(records)
	fresh, stale := s.cfg.Freshness.Partition(records, now)

	result := MarketResult{IncludeV2: query.IncludeV2}
	if len(fresh) > 0 {
		result.Matches = fresh
		result.TotalCount = len(fresh)
		result.CacheControl = match.CacheControlForMatches(fresh)
		return result, nil
	}

	if len(stale) > 0 && query.Mode == SyncModeLite {
		result.Matches = stale
		result.TotalCount = len(stale)
		result.Metadata = s.degradedMetadata(now, stale, SourceStore, FallbackStaleData, "", nil)
		result.CacheControl = match.CacheControlNoStore
		return result, nil
	}

	index := make(map[string]match.Match, len(records))
	for _, item := range records {
		index[item.MatchID] = item
	}

	value, upstreamErr, _ := s.marketFlight.DoContext(ctx, query.Key(), func() (any, error) {
		return s.syncMarket(ctx, query, index)
	})
	if upstreamErr == nil {
		synced, _ := value.(syncedMarket)
		result.Matches = append([]match.Match(nil), synced.items...)
		result.TotalCount = synced.total
		result.CacheControl = match.CacheControlForMatches(result.Matches)
		return result, nil
	}

	errorType := classifyUpstreamError(upstreamErr)
	s.logger.WarnContext(ctx, "market upstream sync failed",
		"query", query.Key(),
		"error_type", errorType,
		"error", upstreamErr,
	)

	result.CacheControl = match.CacheControlNoStore
	if len(stale) > 0 {
		result.Matches = stale
		result.TotalCount = len(stale)
		result.Metadata = s.degradedMetadata(now, stale, SourceStore, FallbackStaleData, errorType, upstreamErr)
		return result, nil
	}

	// Last resort: ignore freshness and the upcoming window.
	emergencyFilter := filter
	emergencyFilter.KickoffAfter = nil
	fallbackCtx, cancel := s.fallbackContext(ctx)
	emergency, err := s.repo.List(fallbackCtx, emergencyFilter)
	cancel()
	if err != nil {
		s.logger.WarnContext(ctx, "emergency market read failed", "query", query.Key(), "error", err)
	}
	emergency = match.DedupeMatches(emergency)
	if len(emergency) > 0 {
		result.Matches = emergency
		result.TotalCount = len(emergency)
		result.Metadata = s.degradedMetadata(now, emergency, SourceEmergency, FallbackEmergencyRead, errorType, upstreamErr)
		return result, nil
	}

	if readErr != nil && errors.Is(upstreamErr, ErrUpstreamEmpty) {
		errorType = ErrorTypePersistence
	}
	result.Matches = []match.Match{}
	result.Metadata = &SyncMetadata{
		Source:         SourceNone,
		ErrorType:      errorType,
		ErrorMessage:   upstreamErr.Error(),
		FallbackReason: FallbackNoData,
	}
	return result, nil
}

type syncedMarket struct {
	items []match.Match
	total int
}

func (s *MatchSyncService) syncMarket(ctx context.Context, query MarketQuery, index map[string]match.Match) (syncedMarket, error) {
	upstreamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UpstreamBudget)
	defer cancel()

	batch, err := s.provider.FetchMarket(upstreamCtx, query)
	if err != nil {
		return syncedMarket{}, err
	}
	if batch.Skipped > 0 {
		s.logger.DebugContext(ctx, "upstream items skipped", "query", query.Key(), "skipped", batch.Skipped)
	}

	items := s.mergeAndPersist(ctx, batch.Items, index)
	if len(items) == 0 {
		return syncedMarket{}, ErrUpstreamEmpty
	}

	total := batch.TotalCount
	if total < len(items) {
		total = len(items)
	}
	return syncedMarket{items: items, total: total}, nil
}

// mergeAndPersist merges every payload with its persisted record and writes the
// result on the worker pool. Output keeps upstream order; failed items are dropped
// only when they could not be merged.
func (s *MatchSyncService) mergeAndPersist(ctx context.Context, payloads []match.Payload, index map[string]match.Match) []match.Match {
	persistCtx, cancel := s.fallbackContext(ctx)
	defer cancel()

	now := s.now().UTC()
	merged := make([]match.Match, len(payloads))
	ok := make([]bool, len(payloads))

	var wg sync.WaitGroup
	for i, payload := range payloads {
		if payload == nil {
			continue
		}
		task := func() {
			defer wg.Done()

			var catcher panics.Catcher
			catcher.Try(func() {
				item, err := s.mergeOne(persistCtx, payload, index, now)
				if err != nil {
					s.logger.WarnContext(ctx, "skip upstream item", "match_id", payload.Key(), "error", err)
					return
				}
				merged[i] = item
				ok[i] = true

				if err := s.repo.Upsert(persistCtx, item); err != nil {
					s.logger.ErrorContext(ctx, "persist synced match failed", "match_id", item.MatchID, "error", err)
				}
			})
			if recovered := catcher.Recovered(); recovered != nil {
				s.logger.ErrorContext(ctx, "merge worker panicked", "match_id", payload.Key(), "error", recovered.AsError())
			}
		}

		wg.Add(1)
		if err := s.pool.Submit(task); err != nil {
			// Pool closed or overloaded: run inline.
			task()
		}
	}
	wg.Wait()

	out := make([]match.Match, 0, len(payloads))
	for i := range merged {
		if ok[i] {
			out = append(out, merged[i])
		}
	}
	return match.DedupeMatches(out)
}

func (s *MatchSyncService) mergeOne(ctx context.Context, payload match.Payload, index map[string]match.Match, now time.Time) (match.Match, error) {
	key := strings.TrimSpace(payload.Key())
	if !match.ValidMatchID(key) {
		return match.Match{}, match.ErrMissingIdentifier
	}

	var existing *match.Match
	if item, found := index[key]; found {
		existing = &item
	} else {
		item, found, err := s.repo.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "read persisted match failed", "match_id", key, "error", err)
		} else if found {
			existing = &item
		}
	}
	return match.Apply(payload, existing, now)
}

func (s *MatchSyncService) fallbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FallbackTimeout)
}

func (s *MatchSyncService) degradedMetadata(
	now time.Time,
	items []match.Match,
	source string,
	reason string,
	errorType string,
	cause error,
) *SyncMetadata {
	meta := &SyncMetadata{
		Stale:          true,
		Source:         source,
		ErrorType:      errorType,
		FallbackReason: reason,
	}
	if cause != nil {
		meta.ErrorMessage = cause.Error()
	}

	var lastSync time.Time
	for _, item := range items {
		if item.LastSyncedAt.After(lastSync) {
			lastSync = item.LastSyncedAt
		}
	}
	if !lastSync.IsZero() {
		age := int64(now.Sub(lastSync) / time.Second)
		meta.LastSyncTime = &lastSync
		meta.AgeSeconds = &age
	}
	return meta
}

// classifyUpstreamError maps upstream failures onto the errorType vocabulary.
func classifyUpstreamError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ErrorTypeCircuitOpen
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, ErrUpstreamHTTP):
		return ErrorTypeHTTP
	case errors.Is(err, ErrUpstreamEmpty):
		return ErrorTypeEmpty
	default:
		return ErrorTypeTransport
	}
}
