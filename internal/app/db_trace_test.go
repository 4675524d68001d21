package app

import (
	"strings"
	"testing"
)

func TestFormatDBQueryForTrace(t *testing.T) {
	got := formatDBQueryForTrace(" SELECT   *\nFROM matches \t WHERE status = $1 ")
	want := "SELECT * FROM matches WHERE status = $1"
	if got != want {
		t.Fatalf("unexpected formatted query: %q", got)
	}
}

func TestFormatDBQueryForTrace_Truncates(t *testing.T) {
	long := "SELECT " + strings.Repeat("match_id, ", 100) + "status FROM matches"
	got := formatDBQueryForTrace(long)
	if len(got) != maxTracedQueryLength+len("...") || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated query, got %d bytes", len(got))
	}
}
