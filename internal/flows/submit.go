package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goFeedback/internal/stores"
	"github.com/MrEthical07/goFeedback/internal/transport"
)

const defaultSubmitMessage = "Feedback submitted successfully!"

// SubmitFailureKind classifies submission failures for root-level mapping.
type SubmitFailureKind int

const (
	SubmitFailureNone SubmitFailureKind = iota
	SubmitFailureDuplicate
	SubmitFailureConsumed
	SubmitFailureLedger
	SubmitFailureRejected
	SubmitFailureUnavailable
	SubmitFailureInFlight
)

// SubmitResult is either an accepted submission or a classified failure.
type SubmitResult struct {
	Failure SubmitFailureKind
	Err     error
	Message string
	// Consumed is set when the token was marked spent by this call.
	Consumed bool
}

type SubmitMetrics struct {
	Success   int
	Failure   int
	Duplicate int
	Consumed  int
	Latency   int
}

type SubmitEvents struct {
	Submit string
}

// LedgerOps is the subset of the submission ledger a submit needs.
type LedgerOps struct {
	Begin        func(ctx context.Context, submissionID, tokenKey string) error
	MarkConsumed func(ctx context.Context, tokenKey string) (bool, error)
	Release      func(ctx context.Context, submissionID, tokenKey string) error
}

type SubmitDeps struct {
	Path         string
	SubmissionID string
	// TokenKey is empty on the captcha path.
	TokenKey  string
	SingleUse bool
	EmailHash string
	Body      any
	Post      PostFunc
	Ledger    LedgerOps

	Observers
	Metrics SubmitMetrics
	Events  SubmitEvents
}

type submitResponse struct {
	Message string `json:"message"`
	ID      any    `json:"id"`
}

// RunSubmit claims the submission, performs exactly one backend call and, for
// single-use tokens, marks the token consumed once the backend accepted it.
// A single-use token is claimed together with the submission, so only one
// submission per token reaches the backend at a time.
func RunSubmit(ctx context.Context, deps SubmitDeps) SubmitResult {
	normalizeObservers(&deps.Observers)
	start := deps.Now()
	defer func() {
		deps.ObserveLatency(deps.Metrics.Latency, deps.Now().Sub(start))
	}()

	claimKey := ""
	if deps.SingleUse {
		claimKey = deps.TokenKey
	}
	if deps.Ledger.Begin != nil {
		if err := deps.Ledger.Begin(ctx, deps.SubmissionID, claimKey); err != nil {
			return submitFailed(ctx, deps, classifyLedgerErr(err), err)
		}
	}

	var resp submitResponse
	if err := deps.Post(ctx, "submit_feedback", deps.Path, deps.Body, &resp); err != nil {
		if deps.Ledger.Release != nil {
			if rerr := deps.Ledger.Release(ctx, deps.SubmissionID, claimKey); rerr != nil {
				deps.Logger.WarnContext(ctx, "release submission claim failed",
					"submission_id", deps.SubmissionID,
					"error", rerr,
				)
			}
		}
		return submitFailed(ctx, deps, classifyBackendErr(err), err)
	}

	result := SubmitResult{Message: resp.Message}
	if result.Message == "" {
		result.Message = defaultSubmitMessage
	}

	if deps.SingleUse && deps.TokenKey != "" && deps.Ledger.MarkConsumed != nil {
		marked, err := deps.Ledger.MarkConsumed(ctx, deps.TokenKey)
		if err != nil {
			// The backend accepted the feedback; the local record is best-effort.
			deps.Logger.WarnContext(ctx, "mark token consumed failed",
				"email_hash", deps.EmailHash,
				"submission_id", deps.SubmissionID,
				"error", err,
			)
		}
		result.Consumed = err == nil
		if marked {
			deps.MetricInc(deps.Metrics.Consumed)
		}
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.Logger.InfoContext(ctx, "feedback submitted",
		"email_hash", deps.EmailHash,
		"submission_id", deps.SubmissionID,
	)
	deps.EmitAudit(ctx, deps.Events.Submit, true, deps.EmailHash, nil, func() map[string]string {
		return map[string]string{"submission_id": deps.SubmissionID}
	})
	return result
}

func submitFailed(ctx context.Context, deps SubmitDeps, kind SubmitFailureKind, err error) SubmitResult {
	if kind == SubmitFailureDuplicate {
		deps.MetricInc(deps.Metrics.Duplicate)
	} else {
		deps.MetricInc(deps.Metrics.Failure)
	}
	deps.Logger.WarnContext(ctx, "feedback submission failed",
		"email_hash", deps.EmailHash,
		"submission_id", deps.SubmissionID,
		"error", err,
	)
	deps.EmitAudit(ctx, deps.Events.Submit, false, deps.EmailHash, err, func() map[string]string {
		return map[string]string{"submission_id": deps.SubmissionID}
	})
	return SubmitResult{Failure: kind, Err: err}
}

func classifyLedgerErr(err error) SubmitFailureKind {
	switch {
	case errors.Is(err, stores.ErrDuplicateSubmission):
		return SubmitFailureDuplicate
	case errors.Is(err, stores.ErrTokenConsumed):
		return SubmitFailureConsumed
	case errors.Is(err, stores.ErrTokenInFlight):
		return SubmitFailureInFlight
	default:
		return SubmitFailureLedger
	}
}

func classifyBackendErr(err error) SubmitFailureKind {
	var se *transport.StatusError
	if errors.As(err, &se) && !se.ServerSide() {
		return SubmitFailureRejected
	}
	return SubmitFailureUnavailable
}
