package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("network", "ring")).Debug(context.Background(), "gridlock broken",
		Int("packet", 3), Any("favored", 7))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "gridlock broken" {
		t.Fatalf("msg = %v, want %q", rec["msg"], "gridlock broken")
	}
	if rec["network"] != "ring" {
		t.Fatalf("network = %v, want ring", rec["network"])
	}
	if rec["packet"] != float64(3) {
		t.Fatalf("packet = %v, want 3", rec["packet"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "quiet")
	log.Warn(context.Background(), "loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestNoopAcceptsEverything(t *testing.T) {
	log := Noop().With(String("k", "v"))
	log.Error(context.Background(), "dropped", Int("n", 1))
}
