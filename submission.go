package goFeedback

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/MrEthical07/goFeedback/internal"
	"github.com/MrEthical07/goFeedback/internal/flows"
	"github.com/MrEthical07/goFeedback/internal/stores"
)

// Submitter performs one authorized submission per call. Failures are
// *SubmissionError values whose Message is safe to display.
type Submitter interface {
	Submit(ctx context.Context, sub FeedbackSubmission) (SubmissionAck, error)
}

var (
	_ Submitter = (*CaptchaSubmission)(nil)
	_ Submitter = (*MagicLinkSubmission)(nil)
)

// CaptchaSubmission submits feedback authorized by a captcha proof.
type CaptchaSubmission struct {
	client *Client
	proof  string
}

// CaptchaSubmitter returns the captcha gate. An empty proof is a programming
// error and returns ErrCaptchaProofRequired.
func (c *Client) CaptchaSubmitter(proof string) (*CaptchaSubmission, error) {
	if c == nil || c.backend == nil {
		return nil, ErrClientNotReady
	}
	proof = strings.TrimSpace(proof)
	if proof == "" {
		return nil, ErrCaptchaProofRequired
	}
	return &CaptchaSubmission{client: c, proof: proof}, nil
}

type captchaBody struct {
	FeedbackData
	CaptchaToken string `json:"captcha_token"`
}

// Submit posts the feedback with the captcha proof. On success ClearForm is set.
func (g *CaptchaSubmission) Submit(ctx context.Context, sub FeedbackSubmission) (SubmissionAck, error) {
	c := g.client
	if err := sub.Data.Validate(); err != nil {
		return SubmissionAck{}, newSubmissionError(MessageSubmitInvalid, err)
	}
	if sub.ID == "" {
		sub = NewFeedbackSubmission(sub.Data)
	}

	res := flows.RunSubmit(ctx, flows.SubmitDeps{
		Path:         c.config.Backend.FeedbackPath,
		SubmissionID: sub.ID,
		EmailHash:    internal.EmailFingerprint(sub.Data.Email),
		Body:         captchaBody{FeedbackData: sub.Data, CaptchaToken: g.proof},
		Post:         c.backend.PostJSON,
		Ledger:       c.ledgerOps(),
		Observers:    c.observers(),
		Metrics:      c.submitMetrics(MetricSubmitCaptchaSuccess),
		Events: flows.SubmitEvents{
			Submit: auditEventFeedbackSubmitCaptcha,
		},
	})
	if res.Failure != flows.SubmitFailureNone {
		msg := submitFailureMessage(res.Failure)
		if res.Failure == flows.SubmitFailureRejected {
			msg = MessageCaptchaRejected
		}
		return SubmissionAck{}, newSubmissionError(msg, submitCause(res))
	}

	return SubmissionAck{
		Message:      res.Message,
		SubmissionID: sub.ID,
		ClearForm:    true,
	}, nil
}

// MagicLinkSubmission submits feedback authorized by a validated magic link.
// Obtain it from [MagicLinkSession.Submitter].
type MagicLinkSubmission struct {
	session *MagicLinkSession
	client  *Client
	email   string
	token   string
	spent   atomic.Bool
}

type magicLinkBody struct {
	FeedbackData FeedbackData        `json:"feedback_data"`
	Validation   magicLinkValidation `json:"validation"`
}

type magicLinkValidation struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Email is the address the link was validated for.
func (g *MagicLinkSubmission) Email() string {
	return g.email
}

// Submit posts the feedback with the validated (email, token) pair. With
// single-use links a successful call spends the link: the session moves to
// Rejected and later calls fail with ErrTokenConsumed without a backend call.
// Once the session has moved on to another pair the gate is stale and Submit
// fails with ErrSessionNotAuthorized.
func (g *MagicLinkSubmission) Submit(ctx context.Context, sub FeedbackSubmission) (SubmissionAck, error) {
	c := g.client
	if !g.session.holds(g.email, g.token) {
		return SubmissionAck{}, newSubmissionError(MessageInvalidOrExpired, ErrSessionNotAuthorized)
	}
	if c.config.Submission.SingleUse && g.spent.Load() {
		err := newSubmissionError(MessageTokenConsumed, ErrTokenConsumed)
		g.session.report(g.email, g.token, SessionEvent{Kind: EventSubmitFailed, Err: err})
		return SubmissionAck{}, err
	}
	if err := sub.Data.Validate(); err != nil {
		serr := newSubmissionError(MessageSubmitInvalid, err)
		g.session.report(g.email, g.token, SessionEvent{Kind: EventSubmitFailed, Err: serr})
		return SubmissionAck{}, serr
	}
	if sub.ID == "" {
		sub = NewFeedbackSubmission(sub.Data)
	}

	tokenKey := stores.TokenKey(g.email, g.token)
	res := flows.RunSubmit(ctx, flows.SubmitDeps{
		Path:         c.config.Backend.MagicFeedbackPath,
		SubmissionID: sub.ID,
		TokenKey:     tokenKey,
		SingleUse:    c.config.Submission.SingleUse,
		EmailHash:    internal.EmailFingerprint(g.email),
		Body: magicLinkBody{
			FeedbackData: sub.Data,
			Validation:   magicLinkValidation{Email: g.email, Token: g.token},
		},
		Post:      c.backend.PostJSON,
		Ledger:    c.ledgerOps(),
		Observers: c.observers(),
		Metrics:   c.submitMetrics(MetricSubmitMagicLinkSuccess),
		Events: flows.SubmitEvents{
			Submit: auditEventFeedbackSubmitMagicLink,
		},
	})

	if res.Failure != flows.SubmitFailureNone {
		serr := newSubmissionError(submitFailureMessage(res.Failure), submitCause(res))
		if res.Failure == flows.SubmitFailureConsumed {
			g.spent.Store(true)
			g.session.consume(g.email, g.token)
		}
		g.session.report(g.email, g.token, SessionEvent{Kind: EventSubmitFailed, Err: serr})
		return SubmissionAck{}, serr
	}

	ack := SubmissionAck{
		Message:      res.Message,
		SubmissionID: sub.ID,
	}
	if c.config.Submission.SingleUse {
		g.spent.Store(true)
		g.session.consume(g.email, g.token)
	}
	g.session.report(g.email, g.token, SessionEvent{Kind: EventSubmitted, Ack: &ack})
	return ack, nil
}

func (c *Client) ledgerOps() flows.LedgerOps {
	sub := c.config.Submission
	return flows.LedgerOps{
		Begin: func(ctx context.Context, submissionID, key string) error {
			return c.ledger.Begin(ctx, submissionID, key, sub.ClaimTTL)
		},
		MarkConsumed: func(ctx context.Context, key string) (bool, error) {
			return c.ledger.MarkConsumed(ctx, key, sub.ConsumedTTL)
		},
		Release: func(ctx context.Context, submissionID, key string) error {
			return c.ledger.Release(ctx, submissionID, key)
		},
	}
}

func (c *Client) submitMetrics(success MetricID) flows.SubmitMetrics {
	return flows.SubmitMetrics{
		Success:   int(success),
		Failure:   int(MetricSubmitFailure),
		Duplicate: int(MetricSubmitDuplicate),
		Consumed:  int(MetricTokenConsumed),
		Latency:   int(MetricSubmitLatency),
	}
}

func submitFailureMessage(kind flows.SubmitFailureKind) string {
	switch kind {
	case flows.SubmitFailureDuplicate:
		return MessageSubmitDuplicate
	case flows.SubmitFailureConsumed:
		return MessageTokenConsumed
	case flows.SubmitFailureInFlight:
		return MessageSubmitInFlight
	default:
		return MessageSubmitFailed
	}
}

// submitCause keeps errors.Is working against package sentinels.
func submitCause(res flows.SubmitResult) error {
	switch res.Failure {
	case flows.SubmitFailureDuplicate, flows.SubmitFailureConsumed, flows.SubmitFailureInFlight, flows.SubmitFailureLedger:
		return res.Err
	default:
		return backendError(res.Err)
	}
}
