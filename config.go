package goFeedback

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the full client configuration. Obtain a baseline from
// [DefaultConfig] and override fields before passing it to [Builder.WithConfig].
type Config struct {
	Backend    BackendConfig    `envPrefix:"BACKEND_" yaml:"backend"`
	Validation ValidationConfig `envPrefix:"VALIDATION_" yaml:"validation"`
	Request    RequestConfig    `envPrefix:"REQUEST_" yaml:"request"`
	Submission SubmissionConfig `envPrefix:"SUBMISSION_" yaml:"submission"`
	Ledger     LedgerConfig     `envPrefix:"LEDGER_" yaml:"ledger"`
	Ticket     TicketConfig     `envPrefix:"TICKET_" yaml:"ticket"`
	Audit      AuditConfig      `envPrefix:"AUDIT_" yaml:"audit"`
	Metrics    MetricsConfig    `envPrefix:"METRICS_" yaml:"metrics"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig locates the feedback backend. Paths are relative to BaseURL.
type BackendConfig struct {
	BaseURL           string        `env:"BASE_URL" yaml:"base_url"`
	Timeout           time.Duration `env:"TIMEOUT" yaml:"timeout"`
	UserAgent         string        `env:"USER_AGENT" yaml:"user_agent"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" yaml:"max_body_bytes"`
	RequestLinkPath   string        `env:"REQUEST_LINK_PATH" yaml:"request_link_path"`
	ValidateLinkPath  string        `env:"VALIDATE_LINK_PATH" yaml:"validate_link_path"`
	MagicFeedbackPath string        `env:"MAGIC_FEEDBACK_PATH" yaml:"magic_feedback_path"`
	FeedbackPath      string        `env:"FEEDBACK_PATH" yaml:"feedback_path"`
}

/*
====================================
FLOW CONFIG
====================================
*/

// ValidationConfig bounds a single magic-link validation call.
type ValidationConfig struct {
	// Timeout is the longest a session may stay Validating. On expiry the
	// attempt counts as a transport error.
	Timeout time.Duration `env:"TIMEOUT" yaml:"timeout"`
}

type RequestConfig struct {
	// CheckFormat rejects malformed addresses locally before any call.
	CheckFormat bool `env:"CHECK_FORMAT" yaml:"check_format"`
}

// SubmissionConfig controls the authorized submission gate.
type SubmissionConfig struct {
	// SingleUse spends the magic link on its first accepted submission.
	SingleUse   bool          `env:"SINGLE_USE" yaml:"single_use"`
	ClaimTTL    time.Duration `env:"CLAIM_TTL" yaml:"claim_ttl"`
	ConsumedTTL time.Duration `env:"CONSUMED_TTL" yaml:"consumed_ttl"`
}

type LedgerConfig struct {
	RedisPrefix string `env:"REDIS_PREFIX" yaml:"redis_prefix"`
}

/*
====================================
TICKET CONFIG
====================================
*/

// TicketConfig configures signed authorization tickets for web frontends.
type TicketConfig struct {
	Enabled       bool          `env:"ENABLED" yaml:"enabled"`
	TTL           time.Duration `env:"TTL" yaml:"ttl"`
	SigningMethod string        `env:"SIGNING_METHOD" yaml:"signing_method"` // "hs256" (default) or "ed25519"
	PrivateKey    []byte        `yaml:"-"`
	PublicKey     []byte        `yaml:"-"`
	Issuer        string        `env:"ISSUER" yaml:"issuer"`
	Audience      string        `env:"AUDIENCE" yaml:"audience"`
	CookieName    string        `env:"COOKIE_NAME" yaml:"cookie_name"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `env:"ENABLED" yaml:"enabled"`
	BufferSize int  `env:"BUFFER_SIZE" yaml:"buffer_size"`
	DropIfFull bool `env:"DROP_IF_FULL" yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED" yaml:"enabled"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS" yaml:"latency_histograms"`
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:           "http://127.0.0.1:8000/api/v1",
			Timeout:           15 * time.Second,
			UserAgent:         "goFeedback",
			MaxBodyBytes:      1 << 20,
			RequestLinkPath:   "/magic-link/request-magic-link",
			ValidateLinkPath:  "/magic-link/validate-magic-link",
			MagicFeedbackPath: "/magic-link/feedback",
			FeedbackPath:      "/feedback/",
		},
		Validation: ValidationConfig{
			Timeout: 10 * time.Second,
		},
		Submission: SubmissionConfig{
			SingleUse:   true,
			ClaimTTL:    24 * time.Hour,
			ConsumedTTL: 24 * time.Hour,
		},
		Ledger: LedgerConfig{
			RedisPrefix: "gfl",
		},
		Ticket: TicketConfig{
			TTL:           15 * time.Minute,
			SigningMethod: "hs256",
			Issuer:        "gofeedback",
			Audience:      "feedback",
			CookieName:    "feedback_ticket",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Ticket.PrivateKey = cloneBytes(cfg.Ticket.PrivateKey)
	out.Ticket.PublicKey = cloneBytes(cfg.Ticket.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// Backend
	u, err := url.Parse(strings.TrimSpace(c.Backend.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("Backend BaseURL must be an absolute http(s) URL")
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("Backend Timeout must be > 0")
	}
	if c.Backend.MaxBodyBytes <= 0 {
		return errors.New("Backend MaxBodyBytes must be > 0")
	}
	for name, p := range map[string]string{
		"RequestLinkPath":   c.Backend.RequestLinkPath,
		"ValidateLinkPath":  c.Backend.ValidateLinkPath,
		"MagicFeedbackPath": c.Backend.MagicFeedbackPath,
		"FeedbackPath":      c.Backend.FeedbackPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Backend %s must start with /", name)
		}
	}

	// Validation
	if c.Validation.Timeout <= 0 {
		return errors.New("Validation Timeout must be > 0")
	}
	if c.Validation.Timeout > 2*time.Minute {
		return errors.New("Validation Timeout must be <= 2m")
	}

	// Submission
	if c.Submission.ClaimTTL <= 0 {
		return errors.New("Submission ClaimTTL must be > 0")
	}
	if c.Submission.SingleUse && c.Submission.ConsumedTTL <= 0 {
		return errors.New("Submission ConsumedTTL must be > 0 when SingleUse is true")
	}

	// Ledger
	if strings.ContainsAny(c.Ledger.RedisPrefix, " :") {
		return errors.New("Ledger RedisPrefix must not contain spaces or ':'")
	}

	// Ticket
	if c.Ticket.Enabled {
		if c.Ticket.TTL <= 0 {
			return errors.New("Ticket TTL must be > 0")
		}
		if c.Ticket.TTL > 24*time.Hour {
			return errors.New("Ticket TTL must be <= 24h")
		}
		switch c.Ticket.SigningMethod {
		case "hs256":
			if len(c.Ticket.PrivateKey) < 32 {
				return errors.New("Ticket hs256 requires PrivateKey of at least 32 bytes")
			}
		case "ed25519":
			if len(c.Ticket.PrivateKey) == 0 || len(c.Ticket.PublicKey) == 0 {
				return errors.New("Ticket ed25519 requires PrivateKey and PublicKey")
			}
		default:
			return errors.New("unsupported Ticket signing method")
		}
		if c.Ticket.CookieName == "" {
			return errors.New("Ticket CookieName must be set")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
