package goFeedback

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !cfg.Submission.SingleUse {
		t.Fatal("links should be single-use by default")
	}
	if cfg.Ticket.Enabled {
		t.Fatal("tickets should be opt-in")
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Backend.BaseURL = "/api/v1" }, "BaseURL"},
		{"zero backend timeout", func(c *Config) { c.Backend.Timeout = 0 }, "Backend Timeout"},
		{"path without slash", func(c *Config) { c.Backend.FeedbackPath = "feedback" }, "FeedbackPath"},
		{"zero validation timeout", func(c *Config) { c.Validation.Timeout = 0 }, "Validation Timeout"},
		{"huge validation timeout", func(c *Config) { c.Validation.Timeout = time.Hour }, "Validation Timeout"},
		{"zero claim ttl", func(c *Config) { c.Submission.ClaimTTL = 0 }, "ClaimTTL"},
		{"zero consumed ttl", func(c *Config) { c.Submission.ConsumedTTL = 0 }, "ConsumedTTL"},
		{"prefix with colon", func(c *Config) { c.Ledger.RedisPrefix = "a:b" }, "RedisPrefix"},
		{"ticket without key", func(c *Config) { c.Ticket.Enabled = true }, "PrivateKey"},
		{"ticket bad method", func(c *Config) {
			c.Ticket.Enabled = true
			c.Ticket.SigningMethod = "rs256"
		}, "signing method"},
		{"audit zero buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, "BufferSize"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestConsumedTTLIgnoredWithoutSingleUse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Submission.SingleUse = false
	cfg.Submission.ConsumedTTL = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfigFromEnvironMap(t *testing.T) {
	cfg, err := loadConfigFromEnv(DefaultConfig(), map[string]string{
		"GOFEEDBACK_BACKEND_BASE_URL":           "https://feedback.example.com/api/v1",
		"GOFEEDBACK_VALIDATION_TIMEOUT":         "5s",
		"GOFEEDBACK_SUBMISSION_SINGLE_USE":      "false",
		"GOFEEDBACK_LEDGER_REDIS_PREFIX":        "fb",
		"GOFEEDBACK_TICKET_ENABLED":             "true",
		"GOFEEDBACK_TICKET_SECRET":              string(testTicketSecret),
		"GOFEEDBACK_METRICS_LATENCY_HISTOGRAMS": "false",
	})
	if err != nil {
		t.Fatalf("loadConfigFromEnv: %v", err)
	}
	if cfg.Backend.BaseURL != "https://feedback.example.com/api/v1" {
		t.Fatalf("base url not applied: %q", cfg.Backend.BaseURL)
	}
	if cfg.Validation.Timeout != 5*time.Second {
		t.Fatalf("timeout not applied: %v", cfg.Validation.Timeout)
	}
	if cfg.Submission.SingleUse {
		t.Fatal("single use not applied")
	}
	if cfg.Ledger.RedisPrefix != "fb" {
		t.Fatalf("prefix not applied: %q", cfg.Ledger.RedisPrefix)
	}
	if !cfg.Ticket.Enabled || string(cfg.Ticket.PrivateKey) != string(testTicketSecret) {
		t.Fatal("ticket secret not applied")
	}
	if cfg.Metrics.EnableLatencyHistograms {
		t.Fatal("latency histograms not disabled")
	}
	if cfg.Backend.FeedbackPath != "/feedback/" {
		t.Fatalf("unset fields must keep defaults, got %q", cfg.Backend.FeedbackPath)
	}
}

func TestLoadConfigFromEnvValidates(t *testing.T) {
	_, err := loadConfigFromEnv(DefaultConfig(), map[string]string{
		"GOFEEDBACK_TICKET_ENABLED": "true",
		"GOFEEDBACK_TICKET_SECRET":  "short",
	})
	if err == nil {
		t.Fatal("expected short ticket secret to fail validation")
	}

	_, err = loadConfigFromEnv(DefaultConfig(), map[string]string{
		"GOFEEDBACK_VALIDATION_TIMEOUT": "soon",
	})
	if err == nil {
		t.Fatal("expected unparsable duration to fail")
	}
}

func TestLoadConfigFromEnvKeepsBase(t *testing.T) {
	base := DefaultConfig()
	base.Backend.UserAgent = "feedback-bff"
	cfg, err := loadConfigFromEnv(base, map[string]string{})
	if err != nil {
		t.Fatalf("loadConfigFromEnv: %v", err)
	}
	if cfg.Backend.UserAgent != "feedback-bff" {
		t.Fatalf("base value lost: %q", cfg.Backend.UserAgent)
	}
}
