package goFeedback

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "GOFEEDBACK_"

// ticketKeyEnv holds key material, which is read as text rather than bytes.
// Secrets may come from a file path via the *_FILE variants.
type ticketKeyEnv struct {
	Secret        string `env:"TICKET_SECRET"`
	SecretFile    string `env:"TICKET_SECRET_FILE,file"`
	PrivateKeyPEM string `env:"TICKET_PRIVATE_KEY_FILE,file"`
	PublicKeyPEM  string `env:"TICKET_PUBLIC_KEY_FILE,file"`
}

// LoadConfigFromEnv overlays GOFEEDBACK_* environment variables on the
// defaults, e.g. GOFEEDBACK_BACKEND_BASE_URL or GOFEEDBACK_VALIDATION_TIMEOUT=5s.
// The result is validated.
func LoadConfigFromEnv() (Config, error) {
	return loadConfigFromEnv(defaultConfig(), nil)
}

// ApplyEnv overlays environment variables onto cfg, leaving unset fields untouched.
func ApplyEnv(cfg Config) (Config, error) {
	return loadConfigFromEnv(cfg, nil)
}

func loadConfigFromEnv(cfg Config, environ map[string]string) (Config, error) {
	cfg = cloneConfig(cfg)
	opts := env.Options{Prefix: envPrefix}
	if environ != nil {
		opts.Environment = environ
	}

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	var keys ticketKeyEnv
	if err := env.ParseWithOptions(&keys, opts); err != nil {
		return Config{}, fmt.Errorf("parse ticket keys: %w", err)
	}
	switch {
	case keys.Secret != "":
		cfg.Ticket.PrivateKey = []byte(keys.Secret)
	case keys.SecretFile != "":
		cfg.Ticket.PrivateKey = []byte(keys.SecretFile)
	case keys.PrivateKeyPEM != "":
		cfg.Ticket.PrivateKey = []byte(keys.PrivateKeyPEM)
	}
	if keys.PublicKeyPEM != "" {
		cfg.Ticket.PublicKey = []byte(keys.PublicKeyPEM)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
