package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/riskibarqy/match-sync/external/predictions"
	"github.com/riskibarqy/match-sync/internal/config"
	"github.com/riskibarqy/match-sync/internal/domain/match"
	"github.com/riskibarqy/match-sync/internal/infrastructure/repository/cache"
	"github.com/riskibarqy/match-sync/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/match-sync/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/match-sync/internal/infrastructure/repository/redisstore"
	"github.com/riskibarqy/match-sync/internal/interfaces/httpapi"
	"github.com/riskibarqy/match-sync/internal/platform/logging"
	"github.com/riskibarqy/match-sync/internal/platform/resilience"
	"github.com/riskibarqy/match-sync/internal/usecase"
)

const storePingTimeout = 5 * time.Second

type closeFunc func(context.Context) error

// NewHTTPServer wires the store, the upstream client and the sync service
// behind the HTTP router. The returned func releases everything the server
// holds and must be called after Shutdown.
func NewHTTPServer(ctx context.Context, cfg config.Config, logger *logging.Logger) (*http.Server, func(context.Context) error, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, nil, fmt.Errorf("http server addr cannot be empty")
	}

	repo, closeStore, err := newMatchRepository(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.CacheEnabled {
		repo = cache.NewMatchRepository(repo, cfg.CacheTTL)
	}

	provider := predictions.NewClient(predictions.ClientConfig{
		BaseURL:        cfg.UpstreamBaseURL,
		APIKey:         cfg.UpstreamAPIKey,
		Backoff:        backoffConfig(cfg),
		RateLimit:      cfg.UpstreamRateLimitRPS,
		RateBurst:      cfg.UpstreamRateLimitBurst,
		Logger:         logger,
		CircuitBreaker: circuitBreakerConfig(cfg),
	})

	svc, err := usecase.NewMatchSyncService(repo, provider, nil, matchSyncConfig(cfg), logger)
	if err != nil {
		_ = closeStore(ctx)
		return nil, nil, fmt.Errorf("build match sync service: %w", err)
	}

	handler := httpapi.NewHandler(svc, logger)
	router := httpapi.NewRouter(handler, logger, httpapi.RouterConfig{
		ServiceName:        cfg.ServiceName,
		SwaggerEnabled:     cfg.SwaggerEnabled,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout:     cfg.RequestTimeout,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	cleanup := func(ctx context.Context) error {
		svc.Close()
		return closeStore(ctx)
	}

	logger.Info("match sync wired",
		"store", cfg.StoreDriver,
		"cache_enabled", cfg.CacheEnabled,
		"upstream", cfg.UpstreamBaseURL,
		"live_ttl", cfg.FreshnessTTLLive.String(),
		"upcoming_ttl", cfg.FreshnessTTLUpcoming.String(),
	)

	return server, cleanup, nil
}

func newMatchRepository(ctx context.Context, cfg config.Config, logger *logging.Logger) (match.Repository, closeFunc, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("postgres store connected", "db_name", postgres.DBNameFromURL(cfg.DBURL))
		return postgres.NewMatchRepository(db), func(context.Context) error { return db.Close() }, nil
	case config.StoreRedis:
		client, err := openRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("redis store connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return redisstore.NewMatchRepository(client, cfg.RedisKeyPrefix), func(context.Context) error { return client.Close() }, nil
	default:
		logger.Warn("using in-memory match store, data does not survive restarts")
		return memory.NewMatchRepository(nil), func(context.Context) error { return nil }, nil
	}
}

func openPostgres(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	dsn := postgres.NormalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)
	db, err := otelsqlx.Open("postgres", dsn,
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(postgres.DBNameFromURL(dsn)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping postgres: %w", err), db.Close())
	}

	return db, nil
}

func openRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", err), client.Close())
	}

	return client, nil
}

func backoffConfig(cfg config.Config) resilience.BackoffConfig {
	return resilience.BackoffConfig{
		MaxAttempts:    cfg.UpstreamMaxAttempts,
		InitialDelay:   cfg.UpstreamInitialDelay,
		MaxDelay:       cfg.UpstreamMaxDelay,
		Multiplier:     2,
		Jitter:         cfg.UpstreamJitter,
		AttemptTimeout: cfg.UpstreamTimeout,
	}
}

func circuitBreakerConfig(cfg config.Config) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Enabled:          cfg.UpstreamCircuitEnabled,
		FailureThreshold: cfg.UpstreamCircuitFailureCount,
		OpenTimeout:      cfg.UpstreamCircuitOpenTimeout,
		HalfOpenMaxReq:   cfg.UpstreamCircuitHalfOpenMaxReq,
	}
}

func matchSyncConfig(cfg config.Config) usecase.MatchSyncConfig {
	return usecase.MatchSyncConfig{
		Freshness: match.FreshnessPolicy{
			LiveTTL:     cfg.FreshnessTTLLive,
			UpcomingTTL: cfg.FreshnessTTLUpcoming,
		},
		UpstreamBudget:  cfg.SyncUpstreamBudget,
		FallbackTimeout: cfg.SyncFallbackTimeout,
		UpcomingGrace:   cfg.SyncUpcomingGrace,
		PersistWorkers:  cfg.SyncPersistWorkers,
		DefaultLimit:    cfg.SyncDefaultLimit,
		MaxLimit:        cfg.SyncMaxLimit,
	}
}
