package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/riskibarqy/match-sync/internal/config"
	"github.com/riskibarqy/match-sync/internal/platform/logging"
)

func TestInitUptrace_Disabled(t *testing.T) {
	cfg := config.Config{
		UptraceEnabled: false,
		ServiceName:    "match-sync-api",
		ServiceVersion: "dev",
		AppEnv:         config.EnvDev,
	}

	base := logging.NewNop()
	logger, shutdown, err := InitUptrace(cfg, base)
	if err != nil {
		t.Fatalf("init uptrace: %v", err)
	}
	if logger != base {
		t.Fatalf("expected the base logger back when uptrace is disabled")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown uptrace: %v", err)
	}
}

func TestWithOTelLogs_KeepsBaseOutput(t *testing.T) {
	var buf bytes.Buffer
	base := logging.NewWriter(&buf, logging.LevelInfo)

	logger := withOTelLogs(base, "dev", zapcore.InfoLevel)
	logger.Info("match synced", "match_id", "42")

	if !bytes.Contains(buf.Bytes(), []byte(`"match_id":"42"`)) {
		t.Fatalf("expected base core to still receive entries, got %s", buf.String())
	}
}

func TestOTelLogCore_LevelAndFields(t *testing.T) {
	core := newOTelLogCore("dev", zapcore.WarnLevel)
	if core.Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be below the configured level")
	}
	if !core.Enabled(zapcore.ErrorLevel) {
		t.Fatalf("error should pass the configured level")
	}

	with, ok := core.With([]zapcore.Field{zap.String("service", "match-sync")}).(*otelLogCore)
	if !ok || len(with.fields) != 1 || len(core.fields) != 0 {
		t.Fatalf("With must copy fields without mutating the parent")
	}

	entry := zapcore.Entry{Level: zapcore.ErrorLevel, Message: "upsert failed", Time: time.Now()}
	if err := with.Write(entry, []zapcore.Field{zap.Error(errors.New("boom"))}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestShouldSkipUptraceLog(t *testing.T) {
	if !shouldSkipUptraceLog("http request", map[string]any{"path": "/healthz"}) {
		t.Fatalf("expected health check log to be skipped")
	}
	if shouldSkipUptraceLog("http request", map[string]any{"path": "/v1/market"}) {
		t.Fatalf("did not expect non-health log to be skipped")
	}
	if shouldSkipUptraceLog("upstream request failed", map[string]any{"path": "/healthz"}) {
		t.Fatalf("did not expect non-request event to be skipped")
	}
}

func TestBuildOTelLogAttributes(t *testing.T) {
	attrs := buildOTelLogAttributes(map[string]any{
		"match_id": "42",
		"attempt":  int64(2),
		"payload":  nil,
	})
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "attempt" || attrs[0].Value.AsInt64() != 2 {
		t.Fatalf("unexpected attempt attribute: %+v", attrs[0])
	}
	if attrs[1].Key != "match_id" || attrs[1].Value.AsString() != "42" {
		t.Fatalf("unexpected match_id attribute: %+v", attrs[1])
	}
	if attrs[2].Key != "payload" || attrs[2].Value.Kind() != otellog.KindEmpty {
		t.Fatalf("unexpected payload attribute: %+v", attrs[2])
	}
}

func TestToOTelLogValue_Map(t *testing.T) {
	v := toOTelLogValue(map[string]any{
		"home": 2,
		"away": 1,
	}, 0)
	if v.Kind() != otellog.KindMap {
		t.Fatalf("expected map value, got %s", v.Kind())
	}
	if items := v.AsMap(); len(items) != 2 {
		t.Fatalf("expected 2 map items, got %d", len(items))
	}
}
