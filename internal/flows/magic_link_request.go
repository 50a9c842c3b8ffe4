package flows

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotAccepted is returned when the backend answered but did not report success.
var ErrNotAccepted = errors.New("backend did not accept the request")

type RequestMetrics struct {
	Request        int
	RequestFailure int
}

type RequestEvents struct {
	Request string
}

type RequestDeps struct {
	Path      string
	EmailHash func(string) string
	Post      PostFunc

	Observers
	Metrics RequestMetrics
	Events  RequestEvents
}

// RunRequestMagicLink asks the backend to issue and deliver a link for email.
// The returned error carries raw detail and must not be shown to users.
func RunRequestMagicLink(ctx context.Context, email string, deps RequestDeps) error {
	normalizeObservers(&deps.Observers)
	if deps.Post == nil {
		return errors.New("request flow has no transport")
	}
	emailHash := ""
	if deps.EmailHash != nil {
		emailHash = deps.EmailHash(email)
	}

	var resp statusEnvelope
	err := deps.Post(ctx, "request_magic_link", deps.Path, map[string]string{"email": email}, &resp)
	if err == nil && !resp.ok() {
		err = fmt.Errorf("%w: status %q", ErrNotAccepted, resp.Status)
	}
	if err != nil {
		deps.MetricInc(deps.Metrics.RequestFailure)
		deps.Logger.WarnContext(ctx, "magic link request failed",
			"email_hash", emailHash,
			"error", err,
		)
		deps.EmitAudit(ctx, deps.Events.Request, false, emailHash, err, nil)
		return err
	}

	deps.MetricInc(deps.Metrics.Request)
	deps.Logger.InfoContext(ctx, "magic link requested", "email_hash", emailHash)
	deps.EmitAudit(ctx, deps.Events.Request, true, emailHash, nil, nil)
	return nil
}
