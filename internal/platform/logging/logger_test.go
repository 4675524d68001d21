package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogger_ContextFieldsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(&buf, LevelInfo, "service", "match-sync")

	ctx := WithRequestID(context.Background(), "req-1")
	logger.WarnContext(ctx, "upstream failed", "match_id", "42", "error", errors.New("timeout"))
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one line, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	checks := map[string]string{
		"level":      "WARN",
		"msg":        "upstream failed",
		"service":    "match-sync",
		"match_id":   "42",
		"error":      "timeout",
		"request_id": "req-1",
	}
	for key, want := range checks {
		if got, _ := entry[key].(string); got != want {
			t.Fatalf("field %s = %q, want %q", key, got, want)
		}
	}
	if caller, _ := entry["caller"].(string); !strings.Contains(caller, "logger_test.go") {
		t.Fatalf("expected caller to point at the test, got %q", caller)
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var logger *Logger
	logger.Info("no panic")
	logger.With("k", "v").Error("still no panic")
	if err := logger.Sync(); err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for raw, want := range tests {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", raw, got, want)
		}
	}
}
