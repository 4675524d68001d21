package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_AppEnvValidation(t *testing.T) {
	t.Setenv("APP_ENV", "invalid")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.StoreDriver != StoreMemory {
		t.Fatalf("unexpected store driver: %q", cfg.StoreDriver)
	}
	if cfg.FreshnessTTLLive != 30*time.Second || cfg.FreshnessTTLUpcoming != 2*time.Minute {
		t.Fatalf("unexpected freshness ttls: live=%s upcoming=%s", cfg.FreshnessTTLLive, cfg.FreshnessTTLUpcoming)
	}
	if cfg.UpstreamMaxAttempts != 3 || cfg.UpstreamInitialDelay != 2*time.Second || cfg.UpstreamMaxDelay != 30*time.Second {
		t.Fatalf("unexpected backoff defaults: %+v", cfg)
	}
	if cfg.UpstreamJitter != 0.2 {
		t.Fatalf("unexpected jitter: %v", cfg.UpstreamJitter)
	}
	if !(cfg.UpstreamTimeout < cfg.SyncUpstreamBudget && cfg.SyncUpstreamBudget < cfg.RequestTimeout && cfg.RequestTimeout <= cfg.WriteTimeout) {
		t.Fatalf("default timeouts violate ordering: upstream=%s budget=%s request=%s write=%s",
			cfg.UpstreamTimeout, cfg.SyncUpstreamBudget, cfg.RequestTimeout, cfg.WriteTimeout)
	}
	if cfg.SyncDefaultLimit != 50 || cfg.SyncMaxLimit != 200 {
		t.Fatalf("unexpected limits: default=%d max=%d", cfg.SyncDefaultLimit, cfg.SyncMaxLimit)
	}
}

func TestLoad_DurationsAcceptMilliseconds(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPSTREAM_TIMEOUT", "4000")
	t.Setenv("SYNC_UPSTREAM_BUDGET", "7s")
	t.Setenv("FRESHNESS_TTL_LIVE", "15000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UpstreamTimeout != 4*time.Second {
		t.Fatalf("unexpected upstream timeout: %s", cfg.UpstreamTimeout)
	}
	if cfg.SyncUpstreamBudget != 7*time.Second {
		t.Fatalf("unexpected budget: %s", cfg.SyncUpstreamBudget)
	}
	if cfg.FreshnessTTLLive != 15*time.Second {
		t.Fatalf("unexpected live ttl: %s", cfg.FreshnessTTLLive)
	}
}

func TestLoad_TimeoutOrdering(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "upstream timeout not below budget",
			env:  map[string]string{"UPSTREAM_TIMEOUT": "8s", "SYNC_UPSTREAM_BUDGET": "8s"},
			want: "UPSTREAM_TIMEOUT",
		},
		{
			name: "budget not below request timeout",
			env:  map[string]string{"SYNC_UPSTREAM_BUDGET": "12s", "APP_REQUEST_TIMEOUT": "12s"},
			want: "SYNC_UPSTREAM_BUDGET",
		},
		{
			name: "request timeout above write timeout",
			env:  map[string]string{"APP_REQUEST_TIMEOUT": "20s", "APP_WRITE_TIMEOUT": "15s"},
			want: "APP_REQUEST_TIMEOUT",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("APP_ENV", EnvDev)
			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			_, err := Load()
			if err == nil {
				t.Fatalf("expected ordering error")
			}
			if !strings.HasPrefix(err.Error(), tc.want) {
				t.Fatalf("expected error about %s, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_StoreDriver(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)

	t.Run("redis", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "Redis")
		t.Setenv("REDIS_ADDR", "cache:6380")
		t.Setenv("REDIS_DB", "2")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.StoreDriver != StoreRedis || cfg.RedisAddr != "cache:6380" || cfg.RedisDB != 2 {
			t.Fatalf("unexpected redis config: driver=%q addr=%q db=%d", cfg.StoreDriver, cfg.RedisAddr, cfg.RedisDB)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "mongo")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for invalid STORE_DRIVER")
		}
	})

	t.Run("negative redis db", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", StoreRedis)
		t.Setenv("REDIS_DB", "-1")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for negative REDIS_DB")
		}
	})
}

func TestLoad_UpstreamValidation(t *testing.T) {
	tests := map[string]string{
		"UPSTREAM_MAX_ATTEMPTS":          "0",
		"UPSTREAM_JITTER":                "1.5",
		"UPSTREAM_RATE_LIMIT_BURST":      "0",
		"UPSTREAM_CIRCUIT_FAILURE_COUNT": "0",
		"UPSTREAM_INITIAL_DELAY":         "1m",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv("APP_ENV", EnvDev)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoad_UpstreamBaseURLTrimsSlash(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPSTREAM_BASE_URL", " https://predictions.example.com/ ")
	t.Setenv("UPSTREAM_API_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UpstreamBaseURL != "https://predictions.example.com" {
		t.Fatalf("unexpected base url: %q", cfg.UpstreamBaseURL)
	}
	if cfg.UpstreamAPIKey != "secret" {
		t.Fatalf("unexpected api key")
	}
}

func TestLoad_SyncLimits(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("SYNC_DEFAULT_LIMIT", "300")
	t.Setenv("SYNC_MAX_LIMIT", "200")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when SYNC_DEFAULT_LIMIT > SYNC_MAX_LIMIT")
	}
}

func TestLoad_UpcomingGraceAllowsZero(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("SYNC_UPCOMING_GRACE", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncUpcomingGrace != 0 {
		t.Fatalf("expected zero grace, got %s", cfg.SyncUpcomingGrace)
	}

	t.Setenv("SYNC_UPCOMING_GRACE", "-1s")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for negative SYNC_UPCOMING_GRACE")
	}
}

func TestLoad_UptraceRequiresDSNWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when UPTRACE_ENABLED=true without UPTRACE_DSN")
	}
}

func TestLoad_UptraceDSNFromOTLPHeaders(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", `foo=bar, uptrace-dsn="https://token@api.uptrace.dev?grpc=4317"`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UptraceDSN != "https://token@api.uptrace.dev?grpc=4317" {
		t.Fatalf("unexpected dsn: %q", cfg.UptraceDSN)
	}
}

func TestLoad_DefaultsByEnv(t *testing.T) {
	t.Run("prod disables swagger by default", func(t *testing.T) {
		t.Setenv("APP_ENV", EnvProd)
		t.Setenv("APP_SWAGGER_ENABLED", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if cfg.SwaggerEnabled {
			t.Fatalf("expected SwaggerEnabled=false in prod by default")
		}
	})

	t.Run("dev enables swagger by default", func(t *testing.T) {
		t.Setenv("APP_ENV", EnvDev)
		t.Setenv("APP_SWAGGER_ENABLED", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if !cfg.SwaggerEnabled {
			t.Fatalf("expected SwaggerEnabled=true in dev by default")
		}
	})
}

func TestLoad_PprofDefaultsAddrWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("PPROF_ENABLED", "true")
	t.Setenv("PPROF_ADDR", "  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PprofAddr != ":6060" {
		t.Fatalf("expected default pprof addr :6060, got %q", cfg.PprofAddr)
	}
}

func TestLoad_PyroscopeRequiresServerAddressWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("PYROSCOPE_ENABLED", "true")
	t.Setenv("PYROSCOPE_SERVER_ADDRESS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when PYROSCOPE_ENABLED=true without PYROSCOPE_SERVER_ADDRESS")
	}
}

func TestLoad_PyroscopeAppNameDefaultsToServiceName(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("APP_SERVICE_NAME", "match-sync-api-test")
	t.Setenv("PYROSCOPE_ENABLED", "true")
	t.Setenv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040")
	t.Setenv("PYROSCOPE_APP_NAME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PyroscopeAppName != "match-sync-api-test" {
		t.Fatalf("unexpected pyroscope app name: %q", cfg.PyroscopeAppName)
	}
}

func TestLoad_CORSOriginsDefaultAndParsing(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)

	t.Run("default wildcard", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
			t.Fatalf("unexpected default CORS origins: %+v", cfg.CORSAllowedOrigins)
		}
	})

	t.Run("comma separated parsing", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, http://localhost:5173 ")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if len(cfg.CORSAllowedOrigins) != 2 {
			t.Fatalf("unexpected CORS origins length: %d", len(cfg.CORSAllowedOrigins))
		}
		if cfg.CORSAllowedOrigins[0] != "https://a.example.com" || cfg.CORSAllowedOrigins[1] != "http://localhost:5173" {
			t.Fatalf("unexpected CORS origins: %+v", cfg.CORSAllowedOrigins)
		}
	})

	t.Run("only separators", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", " , ,")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for empty CORS origins")
		}
	})
}

func TestLoad_CacheConfigParsing(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("CACHE_ENABLED", "")
		t.Setenv("CACHE_TTL", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("load config: %v", err)
		}
		if !cfg.CacheEnabled {
			t.Fatalf("expected cache enabled by default")
		}
		if cfg.CacheTTL != 5*time.Second {
			t.Fatalf("unexpected default cache ttl: %s", cfg.CacheTTL)
		}
	})

	t.Run("invalid ttl", func(t *testing.T) {
		t.Setenv("CACHE_TTL", "bad")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for invalid CACHE_TTL")
		}
	})

	t.Run("invalid prepared binary flag", func(t *testing.T) {
		t.Setenv("DB_DISABLE_PREPARED_BINARY_RESULT", "not-bool")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for invalid DB_DISABLE_PREPARED_BINARY_RESULT")
		}
	})
}
