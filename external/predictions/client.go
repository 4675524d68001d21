package predictions

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/riskibarqy/match-sync/internal/domain/match"
	"github.com/riskibarqy/match-sync/internal/platform/logging"
	"github.com/riskibarqy/match-sync/internal/platform/resilience"
	"github.com/riskibarqy/match-sync/internal/usecase"
)

const (
	marketPath       = "/market"
	maxResponseBytes = 6 << 20
)

var bearerTokenRegex = regexp.MustCompile(`(?i)bearer\s+[^\s"']+`)

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider status=%d body=%s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return usecase.ErrUpstreamHTTP
}

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Backoff        resilience.BackoffConfig
	RateLimit      float64
	RateBurst      int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client talks to the prediction/odds provider. Every attempt runs under its
// own timeout; retries follow Backoff.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	backoff    resilience.BackoffConfig
	limiter    *rate.Limiter
	logger     *logging.Logger
	breaker    *resilience.CircuitBreaker
	flight     resilience.SingleFlight
	validate   *validator.Validate
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	breaker := resilience.NewCircuitBreaker("prediction_provider", cfg.CircuitBreaker, func(name string, from, to resilience.CircuitState) {
		logger.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
	})

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		backoff:    resilience.NormalizeBackoffConfig(cfg.Backoff),
		limiter:    limiter,
		logger:     logger,
		breaker:    breaker,
		validate:   validator.New(),
	}
}

// FetchMarket lists matches. Items without a usable id are counted in Skipped.
func (c *Client) FetchMarket(ctx context.Context, query usecase.MarketQuery) (usecase.MarketBatch, error) {
	values := url.Values{}
	if query.Status != "" {
		values.Set("status", query.Status.Lower())
	}
	if query.MatchID != "" {
		values.Set("match_id", query.MatchID)
	}
	if query.LeagueID != "" {
		values.Set("league", query.LeagueID)
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	mode := query.Mode
	if mode == "" {
		mode = usecase.SyncModeFull
	}
	values.Set("mode", string(mode))

	raw, err := c.Fetch(ctx, marketPath, values)
	if err != nil {
		return usecase.MarketBatch{}, err
	}

	batch, err := c.decodeBatch(ctx, raw, mode)
	if err != nil {
		return usecase.MarketBatch{}, err
	}
	return batch, nil
}

// FetchMatch resolves one match through the market endpoint.
func (c *Client) FetchMatch(ctx context.Context, matchID string, mode usecase.SyncMode) (match.Payload, error) {
	matchID = strings.TrimSpace(matchID)
	if !match.ValidMatchID(matchID) {
		return nil, match.ErrMissingIdentifier
	}

	batch, err := c.FetchMarket(ctx, usecase.MarketQuery{MatchID: matchID, Limit: 1, Mode: mode})
	if err != nil {
		return nil, err
	}
	for _, item := range batch.Items {
		if item.Key() == matchID {
			return item, nil
		}
	}
	return nil, fmt.Errorf("%w: match_id=%s", usecase.ErrUpstreamEmpty, matchID)
}

// Fetch performs a GET against the provider with breaker, single-flight and
// retry applied, returning the raw 2xx body.
func (c *Client) Fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.baseURL == "" {
		return nil, crerr.Newf("prediction provider base url is not configured")
	}

	fullURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	out, err, _ := c.flight.DoContext(ctx, fullURL, func() (any, error) {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "prediction provider circuit breaker rejected request", "state", c.breaker.State())
			return nil, fmt.Errorf("%w: %w", usecase.ErrDependencyUnavailable, err)
		}

		raw, reqErr := c.fetchWithRetry(ctx, fullURL)
		switch {
		case reqErr == nil:
			c.breaker.RecordSuccess()
		case isCircuitFailure(reqErr):
			c.breaker.RecordFailure()
		default:
			c.breaker.RecordSuccess()
		}
		return raw, reqErr
	})
	if err != nil {
		return nil, err
	}

	raw, ok := out.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload type %T", out)
	}
	return raw, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, fullURL string) ([]byte, error) {
	var (
		body     []byte
		attempts int
	)
	err := resilience.Retry(ctx, c.backoff, IsRetryable, func(attemptCtx context.Context, attempt int) error {
		attempts = attempt
		raw, err := c.executeAttempt(ctx, attemptCtx, fullURL)
		if err != nil {
			c.logger.DebugContext(ctx, "prediction provider attempt failed", "attempt", attempt, "url", fullURL, "error", err)
			return err
		}
		body = raw
		return nil
	})
	if err == nil {
		return body, nil
	}

	if attempts == 0 {
		err = c.contextFailure(ctx, ctx, err, "start request")
	}
	c.logger.WarnContext(ctx, "prediction provider request failed", "url", fullURL, "attempts", attempts, "error", err)
	return nil, err
}

func (c *Client) executeAttempt(parent, ctx context.Context, fullURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, crerr.Wrapf(usecase.ErrUpstreamTimeout, "wait for rate limiter: %v", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, crerr.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.contextFailure(parent, ctx, err, "send request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, maxResponseBytes)); err != nil {
		return nil, c.contextFailure(parent, ctx, err, "read response body")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, crerr.WithStack(&StatusError{
			StatusCode: resp.StatusCode,
			Body:       abbreviateBody(c.sanitize(buf.String())),
		})
	}

	return append([]byte(nil), buf.B...), nil
}

// contextFailure separates deadline expiry from genuine network failures.
func (c *Client) contextFailure(parent, attemptCtx context.Context, err error, op string) error {
	if parentErr := parent.Err(); parentErr != nil {
		if stderrors.Is(parentErr, context.DeadlineExceeded) {
			return crerr.Wrapf(usecase.ErrUpstreamTimeout, "%s: request budget exhausted", op)
		}
		return crerr.Wrap(parentErr, op)
	}
	if stderrors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return crerr.Wrapf(usecase.ErrUpstreamTimeout, "%s: attempt exceeded %s", op, c.backoff.AttemptTimeout)
	}
	return crerr.WithStack(fmt.Errorf("%w: %s: %s", usecase.ErrUpstreamTransport, op, c.sanitize(err.Error())))
}

func (c *Client) sanitize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if c.apiKey != "" {
		value = strings.ReplaceAll(value, c.apiKey, "REDACTED")
	}
	return bearerTokenRegex.ReplaceAllString(value, "Bearer REDACTED")
}

// IsRetryable reports whether err belongs to the upstream failure taxonomy.
func IsRetryable(err error) bool {
	return stderrors.Is(err, usecase.ErrUpstreamTimeout) ||
		stderrors.Is(err, usecase.ErrUpstreamHTTP) ||
		stderrors.Is(err, usecase.ErrUpstreamTransport)
}

func isCircuitFailure(err error) bool {
	if stderrors.Is(err, usecase.ErrUpstreamTimeout) || stderrors.Is(err, usecase.ErrUpstreamTransport) {
		return true
	}
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

func abbreviateBody(text string) string {
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

type marketEnvelope struct {
	Matches    []map[string]any `json:"matches"`
	Data       []map[string]any `json:"data"`
	TotalCount *int             `json:"total_count"`
}

func (c *Client) decodeBatch(ctx context.Context, raw []byte, mode usecase.SyncMode) (usecase.MarketBatch, error) {
	var envelope marketEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return usecase.MarketBatch{}, crerr.Wrapf(usecase.ErrUpstreamHTTP, "decode provider payload: %v", err)
	}

	items := envelope.Matches
	if len(items) == 0 {
		items = envelope.Data
	}

	decoded := make([]match.Payload, 0, len(items))
	skipped := 0
	for _, item := range items {
		payload, err := c.decodeItem(item, mode)
		if err != nil {
			skipped++
			c.logger.DebugContext(ctx, "skip provider item", "item", describeItem(item), "error", err)
			continue
		}
		decoded = append(decoded, payload)
	}

	out := make([]match.Payload, 0, len(decoded))
	for payload := range match.Dedupe(slices.Values(decoded), match.Payload.Key) {
		out = append(out, payload)
	}
	skipped += len(decoded) - len(out)

	total := len(out)
	if envelope.TotalCount != nil && *envelope.TotalCount > total {
		total = *envelope.TotalCount
	}

	return usecase.MarketBatch{Items: out, TotalCount: total, Skipped: skipped}, nil
}

var _ usecase.MatchSyncProvider = (*Client)(nil)
