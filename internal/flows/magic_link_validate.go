package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goFeedback/internal/transport"
)

var (
	// ErrLinkInvalid marks an authoritative rejection of a link.
	ErrLinkInvalid = errors.New("magic link invalid or expired")
	// ErrLinkTransport marks a validation that got no usable answer.
	ErrLinkTransport = errors.New("magic link validation transport failure")
)

// Validation outcomes. The root package maps these onto its OutcomeKind.
const (
	OutcomeSuccess = iota
	OutcomeInvalidOrExpired
	OutcomeTransportError
)

// ValidateResult carries the classified outcome. Detail is for logs only.
type ValidateResult struct {
	Outcome int
	Detail  string
}

type ValidateMetrics struct {
	Success          int
	InvalidOrExpired int
	TransportError   int
	Latency          int
}

type ValidateEvents struct {
	Validate string
}

type ValidateDeps struct {
	Path      string
	Timeout   time.Duration
	EmailHash func(string) string
	Post      PostFunc

	Observers
	Metrics ValidateMetrics
	Events  ValidateEvents
}

// RunValidateMagicLink performs one validation call and classifies the answer.
// It never returns an error: every failure mode folds into an outcome, and a
// timeout or panic fails closed as a transport error.
func RunValidateMagicLink(ctx context.Context, email, token string, deps ValidateDeps) (res ValidateResult) {
	normalizeObservers(&deps.Observers)
	emailHash := ""
	if deps.EmailHash != nil {
		emailHash = deps.EmailHash(email)
	}
	start := deps.Now()

	defer func() {
		if r := recover(); r != nil {
			res = ValidateResult{Outcome: OutcomeTransportError, Detail: fmt.Sprintf("panic during validation: %v", r)}
		}
		deps.ObserveLatency(deps.Metrics.Latency, deps.Now().Sub(start))
		record(ctx, deps, emailHash, res)
	}()

	if deps.Post == nil {
		return ValidateResult{Outcome: OutcomeTransportError, Detail: "validation has no transport"}
	}
	if deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.Timeout)
		defer cancel()
	}

	var resp statusEnvelope
	err := deps.Post(ctx, "validate_magic_link", deps.Path, map[string]string{
		"email": email,
		"token": token,
	}, &resp)
	return Classify(resp.Status, resp.Message, err)
}

// Classify maps a decoded status (or the call error) onto an outcome.
// A non-5xx status error is the backend's authoritative rejection; anything
// without a usable answer is a transport error.
func Classify(status, message string, err error) ValidateResult {
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) && !se.ServerSide() {
			return ValidateResult{Outcome: OutcomeInvalidOrExpired, Detail: se.Error()}
		}
		return ValidateResult{Outcome: OutcomeTransportError, Detail: err.Error()}
	}
	if status == "success" {
		return ValidateResult{Outcome: OutcomeSuccess}
	}
	detail := fmt.Sprintf("status %q", status)
	if message != "" {
		detail += ": " + message
	}
	return ValidateResult{Outcome: OutcomeInvalidOrExpired, Detail: detail}
}

func record(ctx context.Context, deps ValidateDeps, emailHash string, res ValidateResult) {
	outcome := "success"
	switch res.Outcome {
	case OutcomeSuccess:
		deps.MetricInc(deps.Metrics.Success)
		deps.Logger.InfoContext(ctx, "magic link validated", "email_hash", emailHash)
	case OutcomeInvalidOrExpired:
		outcome = "invalid_or_expired"
		deps.MetricInc(deps.Metrics.InvalidOrExpired)
		deps.Logger.InfoContext(ctx, "magic link rejected",
			"email_hash", emailHash,
			"detail", res.Detail,
		)
	default:
		outcome = "transport_error"
		deps.MetricInc(deps.Metrics.TransportError)
		deps.Logger.WarnContext(ctx, "magic link validation failed",
			"email_hash", emailHash,
			"detail", res.Detail,
		)
	}

	var err error
	switch res.Outcome {
	case OutcomeInvalidOrExpired:
		err = fmt.Errorf("%w: %s", ErrLinkInvalid, res.Detail)
	case OutcomeTransportError:
		err = fmt.Errorf("%w: %s", ErrLinkTransport, res.Detail)
	}
	deps.EmitAudit(ctx, deps.Events.Validate, res.Outcome == OutcomeSuccess, emailHash, err, func() map[string]string {
		return map[string]string{"outcome": outcome}
	})
}
