package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)
	log.With(String("sensor", "radar-1")).Debug(context.Background(), "detection",
		Float64("sn_db", 14.5), Int("bin", 3), Bool("jammed", false), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "detection" || rec["sensor"] != "radar-1" || rec["sn_db"] != 14.5 || rec["error"] != "boom" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn"}, &buf)
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level filtering failed: %q", buf.String())
	}
}

func TestRunIDHelpers(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("expected generated run id")
	}
	again, id2 := EnsureRunID(ctx)
	if id2 != id || RunIDFromContext(again) != id {
		t.Fatalf("run id not stable: %q vs %q", id, id2)
	}
	if RunIDFromContext(nil) != "" {
		t.Fatalf("nil context should have no run id")
	}

	var buf bytes.Buffer
	_, log := WithRunLogger(ctx, NewWithWriter(Config{Format: "json"}, &buf))
	log.Info(ctx, "start")
	if !strings.Contains(buf.String(), id) {
		t.Fatalf("run logger output missing run id: %q", buf.String())
	}
}

func TestConfigWithEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_FILE", "")

	got := Config{Level: "info", Format: "json", File: "sim.log"}.WithEnv()
	if got.Level != "debug" || got.Format != "json" || got.File != "sim.log" {
		t.Fatalf("unexpected config %+v", got)
	}
}

func TestFileLoggerRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.log")
	log := New(Config{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	log.Info(context.Background(), "track created", Int("track_id", 1000))

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), "track created") {
		t.Fatalf("log file missing record: %q", b)
	}
}

func TestNoopLogger(t *testing.T) {
	log := Noop().With(String("k", "v"))
	log.Error(context.Background(), "dropped")
}
