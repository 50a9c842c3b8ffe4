package telemetry

import (
	"context"
	"testing"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), "test-service", Config{Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), "test-service", Config{Enabled: false, Endpoint: "http://localhost:4318"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should ignore cancelled context: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable; nothing is exported because no spans are recorded.
	shutdown, err := Setup(context.Background(), "test-service", Config{Enabled: true, Endpoint: "http://192.0.2.1:4318"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GOFEEDBACK_OTEL_ENDPOINT", "  http://collector:4318  ")
	t.Setenv("GOFEEDBACK_OTEL_ENABLED", "false")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Enabled {
		t.Fatal("expected tracing disabled")
	}
	if cfg.Endpoint != "http://collector:4318" {
		t.Fatalf("expected trimmed endpoint, got %q", cfg.Endpoint)
	}
}

func TestConfigDefaultsEnabled(t *testing.T) {
	cfg, err := configFromEnviron(map[string]string{})
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if !cfg.Enabled || cfg.Endpoint != "" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
