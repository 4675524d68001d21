package predictions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskibarqy/match-sync/internal/domain/match"
	"github.com/riskibarqy/match-sync/internal/platform/resilience"
	"github.com/riskibarqy/match-sync/internal/usecase"
)

func fastBackoff(attempts int) resilience.BackoffConfig {
	return resilience.BackoffConfig{
		MaxAttempts:    attempts,
		InitialDelay:   time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
		Multiplier:     2,
		AttemptTimeout: 200 * time.Millisecond,
	}
}

// recordingTransport fails every request and remembers each request context.
type recordingTransport struct {
	mu       sync.Mutex
	contexts []context.Context
	err      error
}

func (r *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	r.contexts = append(r.contexts, req.Context())
	r.mu.Unlock()
	return nil, r.err
}

func TestClient_FetchMarket_DecodesEnvelope(t *testing.T) {
	t.Parallel()

	var gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/market", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"matches": [
				{"match_id": "1", "status": "NS", "kickoff_at": "2026-03-02T19:45:00Z", "home_team": "A", "away_team": "B"},
				{"id": 2, "live_score": "1-0", "status": "1H"},
				{"match_id": "1", "status": "LIVE"},
				{"match_id": "null"},
				{"score": "2-2"}
			],
			"total_count": 40
		}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		HTTPClient: server.Client(),
		BaseURL:    server.URL + "/",
		APIKey:     "secret-key",
		Backoff:    fastBackoff(1),
	})

	batch, err := client.FetchMarket(context.Background(), usecase.MarketQuery{
		Status:   match.StatusUpcoming,
		LeagueID: "8",
		Limit:    20,
		Mode:     usecase.SyncModeFull,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Contains(t, gotQuery, "status=upcoming")
	assert.Contains(t, gotQuery, "league=8")
	assert.Contains(t, gotQuery, "limit=20")
	assert.Contains(t, gotQuery, "mode=full")

	require.Len(t, batch.Items, 2)
	assert.IsType(t, match.FullPayload{}, batch.Items[0])
	assert.IsType(t, match.LitePayload{}, batch.Items[1])
	assert.Equal(t, "2", batch.Items[1].Key())
	assert.Equal(t, 3, batch.Skipped)
	assert.Equal(t, 40, batch.TotalCount)
}

func TestClient_RetryBudgetExhaustedWithIndependentContexts(t *testing.T) {
	t.Parallel()

	transport := &recordingTransport{err: errors.New("connection reset by peer")}
	client := NewClient(ClientConfig{
		HTTPClient: &http.Client{Transport: transport},
		BaseURL:    "http://provider.invalid",
		Backoff:    fastBackoff(3),
	})

	_, err := client.FetchMarket(context.Background(), usecase.MarketQuery{Mode: usecase.SyncModeLite})
	require.Error(t, err)
	assert.ErrorIs(t, err, usecase.ErrUpstreamTransport)
	assert.NotErrorIs(t, err, usecase.ErrUpstreamTimeout)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.contexts, 3)
	for i, ctx := range transport.contexts {
		assert.Error(t, ctx.Err(), "attempt %d context must be released after the attempt", i+1)
		for j := i + 1; j < len(transport.contexts); j++ {
			assert.False(t, ctx == transport.contexts[j], "attempts %d and %d shared a context", i+1, j+1)
		}
	}
}

func TestClient_AttemptTimeoutClassified(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	backoff := fastBackoff(2)
	backoff.AttemptTimeout = 20 * time.Millisecond
	client := NewClient(ClientConfig{HTTPClient: server.Client(), BaseURL: server.URL, Backoff: backoff})

	_, err := client.FetchMatch(context.Background(), "42", usecase.SyncModeFull)
	require.Error(t, err)
	assert.ErrorIs(t, err, usecase.ErrUpstreamTimeout)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_HTTPErrorRetriedThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream busy Bearer leaked-token", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"matches":[{"match_id":"42","status":"FT","score":"2-1"}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{HTTPClient: server.Client(), BaseURL: server.URL, Backoff: fastBackoff(3)})

	payload, err := client.FetchMatch(context.Background(), "42", usecase.SyncModeLite)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	lite, ok := payload.(match.LitePayload)
	require.True(t, ok)
	require.NotNil(t, lite.Status)
	assert.Equal(t, match.StatusFinished, *lite.Status)
}

func TestClient_HTTPErrorCarriesStatusAndRedactsSecrets(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token secret-key", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		HTTPClient: server.Client(),
		BaseURL:    server.URL,
		APIKey:     "secret-key",
		Backoff:    fastBackoff(2),
	})

	_, err := client.FetchMarket(context.Background(), usecase.MarketQuery{})
	require.Error(t, err)
	assert.ErrorIs(t, err, usecase.ErrUpstreamHTTP)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.False(t, strings.Contains(err.Error(), "secret-key"), "api key leaked into error: %s", err)
}

func TestClient_FetchMatchEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"matches":[],"total_count":0}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{HTTPClient: server.Client(), BaseURL: server.URL, Backoff: fastBackoff(3)})

	_, err := client.FetchMatch(context.Background(), "99", usecase.SyncModeFull)
	assert.ErrorIs(t, err, usecase.ErrUpstreamEmpty)
	assert.False(t, IsRetryable(err))
}

func TestClient_CircuitOpensAfterFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		HTTPClient: server.Client(),
		BaseURL:    server.URL,
		Backoff:    fastBackoff(1),
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
			HalfOpenMaxReq:   1,
		},
	})

	for i := 0; i < 2; i++ {
		_, err := client.FetchMarket(context.Background(), usecase.MarketQuery{})
		require.ErrorIs(t, err, usecase.ErrUpstreamHTTP)
	}

	_, err := client.FetchMarket(context.Background(), usecase.MarketQuery{})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, usecase.ErrDependencyUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_MissingIdentifierRejectedBeforeNetwork(t *testing.T) {
	t.Parallel()

	transport := &recordingTransport{err: errors.New("unreachable")}
	client := NewClient(ClientConfig{HTTPClient: &http.Client{Transport: transport}, BaseURL: "http://provider.invalid"})

	_, err := client.FetchMatch(context.Background(), "undefined", usecase.SyncModeFull)
	assert.ErrorIs(t, err, match.ErrMissingIdentifier)
	assert.Empty(t, transport.contexts)
}
