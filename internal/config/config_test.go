package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "TIME_SCALE", "STALL_TIMEOUT_MS", "STREAM_BACKEND_URL", "STREAM_MARKER", "GOGO_MODE"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.TimeScale != 1.0 {
		t.Fatalf("expected time scale 1, got %v", cfg.TimeScale)
	}
	if cfg.StallTimeout != 0 {
		t.Fatalf("expected watchdog off, got %v", cfg.StallTimeout)
	}
	if cfg.StreamMarker != "data: " {
		t.Fatalf("expected default marker, got %q", cfg.StreamMarker)
	}
	if cfg.ProtocolTolerance != 1 {
		t.Fatalf("expected tolerance 1, got %d", cfg.ProtocolTolerance)
	}
	if cfg.StreamBackendURL != "" || cfg.MockEnabled() {
		t.Fatalf("expected no backend outside mock mode")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("TIME_SCALE", "0.25")
	t.Setenv("STALL_TIMEOUT_MS", "1500")
	t.Setenv("STREAM_BACKEND_URL", "")
	t.Setenv("STREAM_MARKER", "event> ")
	t.Setenv("GOGO_MODE", "mock")
	t.Setenv("MAX_ACTIVE_RUNS", "3")

	cfg := Load()
	if cfg.HTTPPort != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.HTTPPort)
	}
	if cfg.TimeScale != 0.25 {
		t.Fatalf("expected time scale 0.25, got %v", cfg.TimeScale)
	}
	if cfg.StallTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected stall timeout %v", cfg.StallTimeout)
	}
	if cfg.MaxActiveRuns != 3 {
		t.Fatalf("expected 3 max active runs, got %d", cfg.MaxActiveRuns)
	}
	if cfg.StreamMarker != "event> " {
		t.Fatalf("unexpected marker %q", cfg.StreamMarker)
	}
	if !cfg.MockEnabled() {
		t.Fatalf("expected mock mode")
	}
	if cfg.StreamBackendURL != "http://localhost:9090/mock/invoice/stream" {
		t.Fatalf("unexpected backend url %s", cfg.StreamBackendURL)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("TIME_SCALE", "-2")
	cfg := Load()
	if cfg.HTTPPort != 8080 || cfg.TimeScale != 1.0 {
		t.Fatalf("expected defaults, got port=%d scale=%v", cfg.HTTPPort, cfg.TimeScale)
	}
}
