package test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	goFeedback "github.com/MrEthical07/goFeedback"
	"github.com/MrEthical07/goFeedback/middleware"
)

// This test intentionally guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = goFeedback.New
	_ = goFeedback.DefaultConfig
	_ = goFeedback.LoadConfigFromEnv
	_ = goFeedback.ResolveView
	_ = goFeedback.UserMessage

	var _ *goFeedback.Client
	var _ *goFeedback.MagicLinkSession
	var _ *goFeedback.RequestFlow
	var _ goFeedback.Config
	var _ goFeedback.MagicLinkContext
	var _ goFeedback.SessionState
	var _ goFeedback.ValidationOutcome
	var _ goFeedback.FeedbackSubmission
	var _ goFeedback.SubmissionAck
	var _ goFeedback.AuditSink
	var _ goFeedback.Submitter = (*goFeedback.CaptchaSubmission)(nil)
	var _ goFeedback.Submitter = (*goFeedback.MagicLinkSubmission)(nil)

	var _ error = goFeedback.ErrInvalidEmail
	var _ error = goFeedback.ErrSessionNotAuthorized
	var _ error = goFeedback.ErrTokenConsumed
	var _ error = goFeedback.ErrSubmissionInFlight
	var _ error = goFeedback.ErrDuplicateSubmission
	var _ error = goFeedback.ErrBackendRejected
	var _ error = goFeedback.ErrBackendUnavailable
	var _ error = goFeedback.ErrTicketInvalid

	var _ func(*goFeedback.Client) func(http.Handler) http.Handler = middleware.RequireTicket
	var _ func(context.Context) (*goFeedback.MagicLinkSession, bool) = middleware.SessionFromContext

	var _ func(*goFeedback.Client, context.Context, string) error = (*goFeedback.Client).RequestMagicLink
	var _ func(*goFeedback.Client, context.Context, string, string) goFeedback.ValidationOutcome = (*goFeedback.Client).ValidateMagicLink
	var _ func(*goFeedback.Client, context.Context, goFeedback.ListQuery) (goFeedback.FeedbackPage, error) = (*goFeedback.Client).ListFeedback
	var _ func(*goFeedback.MagicLinkSession, context.Context, goFeedback.MagicLinkContext) goFeedback.SessionState = (*goFeedback.MagicLinkSession).Evaluate
	var _ func(*goFeedback.RequestFlow, context.Context, string) (goFeedback.RequestLinkState, error) = (*goFeedback.RequestFlow).Request
	var _ func(url.Values) goFeedback.MagicLinkContext = goFeedback.ContextFromQuery
}
