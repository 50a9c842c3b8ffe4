package goFeedback

import (
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MrEthical07/goFeedback/internal"
)

// MagicLinkContext is the (email, token) pair extracted once from the
// navigation that opened the page. An empty field means the parameter was absent.
type MagicLinkContext struct {
	Email string
	Token string
}

// ContextFromQuery extracts the magic-link parameters from query values.
func ContextFromQuery(q url.Values) MagicLinkContext {
	return MagicLinkContext{
		Email: strings.TrimSpace(q.Get("email")),
		Token: strings.TrimSpace(q.Get("token")),
	}
}

// Complete reports whether both fields are present.
func (c MagicLinkContext) Complete() bool {
	return c.Email != "" && c.Token != ""
}

func (c MagicLinkContext) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email_hash", internal.EmailFingerprint(c.Email)),
		slog.Bool("has_token", c.Token != ""),
	)
}

// OutcomeKind classifies a single validation attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeInvalidOrExpired
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidOrExpired:
		return "invalid_or_expired"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// ValidationOutcome is the result of one validation call. Email is set on
// success; Detail is diagnostic text for logs and is never shown to users.
type ValidationOutcome struct {
	Kind   OutcomeKind
	Email  string
	Detail string
}

// SessionPhase is the phase of a MagicLinkSession.
type SessionPhase int

const (
	PhaseAwaitingInput SessionPhase = iota
	PhaseValidating
	PhaseAuthorized
	PhaseRejected
)

func (p SessionPhase) String() string {
	switch p {
	case PhaseAwaitingInput:
		return "awaiting_input"
	case PhaseValidating:
		return "validating"
	case PhaseAuthorized:
		return "authorized"
	case PhaseRejected:
		return "rejected"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SessionState is a snapshot of a MagicLinkSession. Email and Token are set
// when Authorized; Reason is set when Rejected.
type SessionState struct {
	Phase  SessionPhase
	Email  string
	Token  string
	Reason string
}

func (s SessionState) String() string {
	switch s.Phase {
	case PhaseAuthorized:
		return fmt.Sprintf("authorized(%s)", internal.EmailFingerprint(s.Email))
	case PhaseRejected:
		return fmt.Sprintf("rejected(%q)", s.Reason)
	default:
		return s.Phase.String()
	}
}

func (s SessionState) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("phase", s.Phase.String())}
	if s.Email != "" {
		attrs = append(attrs, slog.String("email_hash", internal.EmailFingerprint(s.Email)))
	}
	if s.Reason != "" {
		attrs = append(attrs, slog.String("reason", s.Reason))
	}
	return slog.GroupValue(attrs...)
}

// View is the UI a frontend should render for a session state.
type View int

const (
	ViewRequestForm View = iota
	ViewValidating
	ViewFeedbackForm
	ViewRejected
)

// View maps the phase to what the page shows.
func (s SessionState) View() View {
	switch s.Phase {
	case PhaseValidating:
		return ViewValidating
	case PhaseAuthorized:
		return ViewFeedbackForm
	case PhaseRejected:
		return ViewRejected
	default:
		return ViewRequestForm
	}
}

// ShowsRequestForm reports whether the link request form is offered. A
// rejected visitor gets the form again below the rejection message.
func (s SessionState) ShowsRequestForm() bool {
	return s.Phase == PhaseAwaitingInput || s.Phase == PhaseRejected
}

// CanSubmit reports whether a magic-link submitter may be built.
func (s SessionState) CanSubmit() bool {
	return s.Phase == PhaseAuthorized
}

// RequestStatus is the phase of a RequestFlow.
type RequestStatus int

const (
	RequestIdle RequestStatus = iota
	RequestSending
	RequestSent
	RequestFailed
)

func (s RequestStatus) String() string {
	switch s {
	case RequestIdle:
		return "idle"
	case RequestSending:
		return "sending"
	case RequestSent:
		return "sent"
	case RequestFailed:
		return "failed"
	default:
		return fmt.Sprintf("request_status(%d)", int(s))
	}
}

// RequestLinkState is a snapshot of a RequestFlow.
type RequestLinkState struct {
	Status      RequestStatus
	TargetEmail string
	Message     string
}

// FeedbackData is the feedback payload. It carries no authorization proof.
type FeedbackData struct {
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	Email     string `json:"email" yaml:"email"`
	Mobile    string `json:"mobile,omitempty" yaml:"mobile,omitempty"`
	Rating    int    `json:"rating" yaml:"rating"`
	Feedback  string `json:"feedback" yaml:"feedback"`
}

const (
	maxNameLength     = 100
	maxFeedbackLength = 5000
	maxMobileLength   = 20
)

// Validate checks the payload locally before any backend call.
func (d FeedbackData) Validate() error {
	switch {
	case strings.TrimSpace(d.FirstName) == "":
		return fmt.Errorf("%w: first name is required", ErrInvalidFeedback)
	case strings.TrimSpace(d.LastName) == "":
		return fmt.Errorf("%w: last name is required", ErrInvalidFeedback)
	case utf8.RuneCountInString(d.FirstName) > maxNameLength || utf8.RuneCountInString(d.LastName) > maxNameLength:
		return fmt.Errorf("%w: name too long", ErrInvalidFeedback)
	case ValidateEmail(d.Email) != nil:
		return fmt.Errorf("%w: email is invalid", ErrInvalidFeedback)
	case len(d.Mobile) > maxMobileLength:
		return fmt.Errorf("%w: mobile too long", ErrInvalidFeedback)
	case d.Rating < 1 || d.Rating > 5:
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidFeedback)
	case strings.TrimSpace(d.Feedback) == "":
		return fmt.Errorf("%w: feedback is required", ErrInvalidFeedback)
	case utf8.RuneCountInString(d.Feedback) > maxFeedbackLength:
		return fmt.Errorf("%w: feedback too long", ErrInvalidFeedback)
	}
	return nil
}

// FeedbackSubmission is one logical submission. The ID identifies it in the
// submission ledger, so resubmitting the same value is detected.
type FeedbackSubmission struct {
	ID   string
	Data FeedbackData
}

// NewFeedbackSubmission wraps data with a fresh submission id.
func NewFeedbackSubmission(data FeedbackData) FeedbackSubmission {
	return FeedbackSubmission{
		ID:   uuid.NewString(),
		Data: data,
	}
}

// SubmissionAck is the result of an accepted submission. ClearForm tells the
// frontend to reset its inputs.
type SubmissionAck struct {
	Message      string
	SubmissionID string
	ClearForm    bool
}

// ValidateEmail reports whether email is a single bare address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return ErrInvalidEmail
	}
	return nil
}
