package goFeedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goFeedback/internal"
	"github.com/MrEthical07/goFeedback/internal/audit"
	"github.com/MrEthical07/goFeedback/internal/flows"
	"github.com/MrEthical07/goFeedback/internal/stores"
	"github.com/MrEthical07/goFeedback/internal/transport"
	"github.com/MrEthical07/goFeedback/jwt"
)

// LedgerKind names the backing store of the submission ledger.
type LedgerKind string

const (
	LedgerMemory LedgerKind = "memory"
	LedgerRedis  LedgerKind = "redis"
)

// Client talks to the feedback backend and hands out per-visitor sessions
// and flows. It is safe for concurrent use.
type Client struct {
	config     Config
	backend    *transport.Client
	ledger     stores.Ledger
	ledgerKind LedgerKind
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     *slog.Logger
	tickets    *jwt.Manager
}

// Close flushes pending audit events. Sessions created by the client keep
// working for in-memory state but should be closed by their owners.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.audit != nil {
		c.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped returns the number of audit events discarded because the buffer was full.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot never returns nil maps.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) observers() flows.Observers {
	return flows.Observers{
		Logger: c.logger,
		MetricInc: func(id int) {
			c.metricInc(MetricID(id))
		},
		ObserveLatency: func(id int, d time.Duration) {
			c.metrics.Observe(MetricID(id), d)
		},
		EmitAudit: c.emitAudit,
	}
}

// checkRequestEmail is the local input check shared by RequestMagicLink and
// RequestFlow. Only the empty address is refused unless Request.CheckFormat is set.
func (c *Client) checkRequestEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	if c.config.Request.CheckFormat {
		return ValidateEmail(email)
	}
	return nil
}

// RequestMagicLink asks the backend to email a link to email. One call per
// invocation, no retries. The returned error wraps ErrBackendRejected or
// ErrBackendUnavailable; render it with [MessageRequestFailed], never verbatim.
func (c *Client) RequestMagicLink(ctx context.Context, email string) error {
	if c == nil || c.backend == nil {
		return ErrClientNotReady
	}
	email = strings.TrimSpace(email)
	if err := c.checkRequestEmail(email); err != nil {
		return err
	}

	err := flows.RunRequestMagicLink(ctx, email, flows.RequestDeps{
		Path:      c.config.Backend.RequestLinkPath,
		EmailHash: internal.EmailFingerprint,
		Post:      c.backend.PostJSON,
		Observers: c.observers(),
		Metrics: flows.RequestMetrics{
			Request:        int(MetricLinkRequested),
			RequestFailure: int(MetricLinkRequestFailed),
		},
		Events: flows.RequestEvents{
			Request: auditEventMagicLinkRequest,
		},
	})
	if err != nil {
		return backendError(err)
	}
	return nil
}

// ValidateMagicLink asks the backend whether (email, token) is a live link.
// It never fails: every error folds into an outcome, and an attempt that runs
// past Config.Validation.Timeout is a transport error.
func (c *Client) ValidateMagicLink(ctx context.Context, email, token string) ValidationOutcome {
	if c == nil || c.backend == nil {
		return ValidationOutcome{Kind: OutcomeTransportError, Detail: ErrClientNotReady.Error()}
	}
	if email == "" || token == "" {
		return ValidationOutcome{Kind: OutcomeInvalidOrExpired, Detail: "incomplete magic link"}
	}

	res := flows.RunValidateMagicLink(ctx, email, token, flows.ValidateDeps{
		Path:      c.config.Backend.ValidateLinkPath,
		Timeout:   c.config.Validation.Timeout,
		EmailHash: internal.EmailFingerprint,
		Post:      c.backend.PostJSON,
		Observers: c.observers(),
		Metrics: flows.ValidateMetrics{
			Success:          int(MetricValidateSuccess),
			InvalidOrExpired: int(MetricValidateInvalid),
			TransportError:   int(MetricValidateTransportError),
			Latency:          int(MetricValidateLatency),
		},
		Events: flows.ValidateEvents{
			Validate: auditEventMagicLinkValidate,
		},
	})

	switch res.Outcome {
	case flows.OutcomeSuccess:
		return ValidationOutcome{Kind: OutcomeSuccess, Email: email}
	case flows.OutcomeInvalidOrExpired:
		return ValidationOutcome{Kind: OutcomeInvalidOrExpired, Detail: res.Detail}
	default:
		return ValidationOutcome{Kind: OutcomeTransportError, Detail: res.Detail}
	}
}

// NewSession returns a MagicLinkSession in AwaitingInput.
func (c *Client) NewSession() *MagicLinkSession {
	return newMagicLinkSession(c, SessionState{Phase: PhaseAwaitingInput})
}

// ResumeAuthorized rebuilds an Authorized session for a pair that was
// validated earlier, typically carried in a signed ticket. No validation call
// is made. With single-use links a pair already spent resumes as Rejected.
func (c *Client) ResumeAuthorized(ctx context.Context, email, token string) *MagicLinkSession {
	if email == "" || token == "" {
		return c.NewSession()
	}
	state := SessionState{Phase: PhaseAuthorized, Email: email, Token: token}
	if c != nil && c.config.Submission.SingleUse && c.ledger != nil {
		consumed, err := c.ledger.IsConsumed(ctx, stores.TokenKey(email, token))
		if err != nil {
			c.logger.WarnContext(ctx, "ledger lookup failed on resume",
				"email_hash", internal.EmailFingerprint(email),
				"error", err,
			)
		}
		if consumed {
			state = SessionState{Phase: PhaseRejected, Email: email, Reason: MessageTokenConsumed}
		}
	}
	s := newMagicLinkSession(c, state)
	s.current = MagicLinkContext{Email: email, Token: token}
	s.resolved = true
	return s
}

// NewRequestFlow returns a RequestFlow in Idle.
func (c *Client) NewRequestFlow() *RequestFlow {
	return newRequestFlow(c)
}

// backendError folds a raw transport or flow error into a package sentinel,
// keeping the original text for logs.
func backendError(err error) error {
	if err == nil {
		return nil
	}
	var se *transport.StatusError
	switch {
	case errors.As(err, &se) && !se.ServerSide(),
		errors.Is(err, flows.ErrNotAccepted):
		return fmt.Errorf("%w: %v", ErrBackendRejected, err)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
