package observability

import (
	"context"
	"strings"

	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/riskibarqy/match-sync/internal/config"
	"github.com/riskibarqy/match-sync/internal/platform/logging"
)

// InitUptrace configures global OpenTelemetry providers for Uptrace. When log
// export is on, the returned logger also forwards entries to Uptrace; otherwise
// it is the logger passed in.
func InitUptrace(cfg config.Config, logger *logging.Logger) (*logging.Logger, func(context.Context) error, error) {
	if logger == nil {
		logger = logging.Default()
	}
	noop := func(context.Context) error { return nil }

	if !cfg.UptraceEnabled {
		logger.Info("uptrace disabled", "reason", "UPTRACE_ENABLED=false")
		return logger, noop, nil
	}

	if strings.TrimSpace(cfg.UptraceDSN) == "" {
		logger.Info("uptrace disabled", "reason", "UPTRACE_DSN empty")
		return logger, noop, nil
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(cfg.ServiceName),
		uptrace.WithServiceVersion(cfg.ServiceVersion),
		uptrace.WithDeploymentEnvironment(cfg.AppEnv),
		uptrace.WithLoggingEnabled(cfg.UptraceLogsEnabled),
	)

	out := logger
	if cfg.UptraceLogsEnabled {
		out = withOTelLogs(logger, cfg.ServiceVersion, cfg.LogLevel)
	}

	out.Info("uptrace enabled",
		"service_name", cfg.ServiceName,
		"service_version", cfg.ServiceVersion,
		"environment", cfg.AppEnv,
		"logs_enabled", cfg.UptraceLogsEnabled,
	)

	return out, uptrace.Shutdown, nil
}

func withOTelLogs(logger *logging.Logger, serviceVersion string, level zapcore.LevelEnabler) *logging.Logger {
	otelCore := newOTelLogCore(serviceVersion, level)
	return logging.FromZap(logger.Zap().WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, otelCore)
	})))
}
