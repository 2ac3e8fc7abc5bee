package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/rfsensor-sim/internal/config"
)

// TestRunShippedScenario runs the bundled scenario long enough for the
// search radar to complete a revolution and checks the printed tables.
func TestRunShippedScenario(t *testing.T) {
	var out bytes.Buffer
	opts := Options{
		ConfigPath: filepath.Join("..", "..", "configs", "scenario.yaml"),
		Duration:   5 * time.Second,
		Workers:    2,
	}
	if err := run(context.Background(), opts, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	if n := strings.Count(got, "MANAGER"); n != 6 {
		t.Fatalf("expected 5 per-second tables plus the final one, got %d:\n%s", n, got)
	}
	if !strings.Contains(got, "t=5s") {
		t.Fatalf("final table missing:\n%s", got)
	}
	last := got[strings.LastIndex(got, "t=5s"):]
	for _, want := range []string{"site-air", "jet", "jet-esm", "site"} {
		if !strings.Contains(last, want) {
			t.Fatalf("final table missing %q:\n%s", want, last)
		}
	}
}

func TestRunMissingConfig(t *testing.T) {
	err := run(context.Background(), Options{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")}, nil)
	if err == nil {
		t.Fatalf("expected an error for a missing scenario")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := Options{ConfigPath: filepath.Join("..", "..", "configs", "scenario.yaml")}
	if err := run(ctx, opts, nil); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Config{Simulation: config.SimulationConfig{
		Tick:     20 * time.Millisecond,
		Duration: 10 * time.Second,
		Workers:  4,
		Mode:     "accelerated",
	}}

	applyOverrides(&cfg, Options{})
	if cfg.Simulation.Tick != 20*time.Millisecond || cfg.Simulation.Workers != 4 || cfg.Simulation.Mode != "accelerated" {
		t.Fatalf("zero options must keep the scenario, got %+v", cfg.Simulation)
	}

	applyOverrides(&cfg, Options{Duration: time.Second, Tick: 50 * time.Millisecond, Workers: 1, RealTime: true})
	if cfg.Simulation.Duration != time.Second || cfg.Simulation.Tick != 50*time.Millisecond || cfg.Simulation.Workers != 1 {
		t.Fatalf("overrides not applied: %+v", cfg.Simulation)
	}
	if cfg.Simulation.Mode != "realtime" {
		t.Fatalf("mode = %q, want realtime", cfg.Simulation.Mode)
	}
}

func TestTracingConfigEnvOverridesScenario(t *testing.T) {
	t.Setenv("RFSIM_TRACING_ENABLED", "true")
	got := tracingConfig(config.TracingConfig{Exporter: "OTLP", SampleRatio: 0.1}, "configs/scenario.yaml")
	if !got.Enabled || got.Exporter != "otlp" || got.SampleRatio != 0.1 {
		t.Fatalf("unexpected tracing config %+v", got)
	}
	if got.Attributes["rfsim.scenario"] != "configs/scenario.yaml" {
		t.Fatalf("scenario attribute missing: %+v", got.Attributes)
	}
}
