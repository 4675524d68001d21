package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/riskibarqy/match-sync/internal/domain/match"
	"github.com/riskibarqy/match-sync/internal/platform/logging"
	"github.com/riskibarqy/match-sync/internal/usecase"
)

type Handler struct {
	matchSyncService *usecase.MatchSyncService
	logger           *logging.Logger
	validator        *validator.Validate
}

func NewHandler(matchSyncService *usecase.MatchSyncService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		matchSyncService: matchSyncService,
		logger:           logger,
		validator:        validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

type marketQueryParams struct {
	Status    string `validate:"omitempty,oneof=upcoming live finished"`
	Mode      string `validate:"omitempty,oneof=lite full"`
	Limit     int    `validate:"gte=0"`
	LeagueID  string `validate:"omitempty,max=64"`
	MatchID   string `validate:"omitempty,max=64"`
	IncludeV2 bool
}

func (h *Handler) ListMarket(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListMarket")
	defer span.End()

	params, err := parseMarketQuery(r.URL.Query())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.validator.StructCtx(ctx, params); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: %s", usecase.ErrInvalidInput, describeValidation(err)))
		return
	}

	query := usecase.MarketQuery{
		LeagueID:  params.LeagueID,
		MatchID:   params.MatchID,
		Limit:     params.Limit,
		Mode:      usecase.SyncMode(params.Mode),
		IncludeV2: params.IncludeV2,
	}
	if params.Status != "" {
		query.Status, _ = match.ParseStatus(params.Status)
	}

	result, err := h.matchSyncService.ListMarket(ctx, query)
	if err != nil {
		h.logger.WarnContext(ctx, "list market failed", "query", r.URL.RawQuery, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeResource(ctx, w, result.CacheControl, marketResponseDTO{
		Matches:    toMatchDTOs(result.Matches, result.IncludeV2),
		TotalCount: result.TotalCount,
		Metadata:   result.Metadata,
	})
}

func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetMatch")
	defer span.End()

	matchID := strings.TrimSpace(r.PathValue("matchID"))
	result, err := h.matchSyncService.GetMatch(ctx, matchID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if !result.Resolved() {
		reason := ""
		if result.Metadata != nil {
			reason = result.Metadata.ErrorType
		}
		h.logger.InfoContext(ctx, "match unresolved", "match_id", matchID, "error_type", reason)
		writeError(ctx, w, fmt.Errorf("%w: match %s", usecase.ErrNotFound, matchID))
		return
	}

	includeV2, _ := strconv.ParseBool(r.URL.Query().Get("include_v2"))
	dto := matchResponseDTO{
		QuickPurchase: result.QuickPurchase,
		Metadata:      result.Metadata,
	}
	if result.Match != nil {
		item := toMatchDTO(*result.Match, includeV2)
		dto.Match = &item
	}

	writeResource(ctx, w, result.CacheControl, dto)
}

func parseMarketQuery(values url.Values) (marketQueryParams, error) {
	params := marketQueryParams{
		Status:   strings.ToLower(strings.TrimSpace(values.Get("status"))),
		Mode:     strings.ToLower(strings.TrimSpace(values.Get("mode"))),
		LeagueID: strings.TrimSpace(firstQueryValue(values, "league", "league_id")),
		MatchID:  strings.TrimSpace(values.Get("match_id")),
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return marketQueryParams{}, fmt.Errorf("%w: limit must be an integer", usecase.ErrInvalidInput)
		}
		params.Limit = limit
	}
	if raw := strings.TrimSpace(values.Get("include_v2")); raw != "" {
		includeV2, err := strconv.ParseBool(raw)
		if err != nil {
			return marketQueryParams{}, fmt.Errorf("%w: include_v2 must be a boolean", usecase.ErrInvalidInput)
		}
		params.IncludeV2 = includeV2
	}
	return params, nil
}

func firstQueryValue(values url.Values, keys ...string) string {
	for _, key := range keys {
		if v := values.Get(key); v != "" {
			return v
		}
	}
	return ""
}

func describeValidation(err error) string {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrs) == 0 {
		return err.Error()
	}

	parts := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fieldErr.Field()), fieldErr.Tag()))
	}
	return strings.Join(parts, ", ")
}
