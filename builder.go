package goFeedback

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goFeedback/internal/audit"
	"github.com/MrEthical07/goFeedback/internal/stores"
	"github.com/MrEthical07/goFeedback/internal/transport"
	"github.com/MrEthical07/goFeedback/jwt"
)

// Builder assembles a Client. Configure it during initialization and call
// Build once.
type Builder struct {
	config     Config
	redis      redis.UniversalClient
	httpClient *http.Client
	auditSink  AuditSink
	logger     *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig copies cfg; later mutation of the caller's value has no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the submission ledger with Redis so claims and consumed
// tokens are shared across replicas. Without it the ledger is in-process.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient overrides the HTTP client used for backend calls.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// Events are only delivered when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := transport.New(b.httpClient, transport.Config{
		BaseURL:      cfg.Backend.BaseURL,
		Timeout:      cfg.Backend.Timeout,
		UserAgent:    cfg.Backend.UserAgent,
		MaxBodyBytes: cfg.Backend.MaxBodyBytes,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		config:  cloneConfig(cfg),
		backend: backend,
		logger:  logger.With("component", "gofeedback"),
		metrics: NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	if b.redis != nil {
		c.ledger = stores.NewRedisLedger(b.redis, cfg.Ledger.RedisPrefix)
		c.ledgerKind = LedgerRedis
	} else {
		c.ledger = stores.NewMemoryLedger()
		c.ledgerKind = LedgerMemory
	}

	if cfg.Ticket.Enabled {
		tm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Ticket.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Ticket.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Ticket.PrivateKey),
			PublicKey:     cloneBytes(cfg.Ticket.PublicKey),
			Issuer:        cfg.Ticket.Issuer,
			Audience:      cfg.Ticket.Audience,
		})
		if err != nil {
			c.audit.Close()
			return nil, err
		}
		c.tickets = tm
	}

	b.built = true

	return c, nil
}
