package goFeedback

import (
	"errors"

	"github.com/MrEthical07/goFeedback/internal/stores"
)

var (
	// ErrInvalidEmail is returned when a required email address is empty or malformed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidFeedback is returned when a feedback payload fails local validation.
	ErrInvalidFeedback = errors.New("invalid feedback")
	// ErrInvalidListQuery is returned for out-of-range paging or unknown sort keys.
	ErrInvalidListQuery = errors.New("invalid list query")
	// ErrCaptchaProofRequired is returned when a captcha submitter is built without a proof.
	ErrCaptchaProofRequired = errors.New("captcha proof required")
	// ErrSessionNotAuthorized is returned when a submitter is requested from a
	// session that has not reached the Authorized phase.
	ErrSessionNotAuthorized = errors.New("magic link session not authorized")
	// ErrSessionClosed is returned by operations on a closed session or flow.
	ErrSessionClosed = errors.New("session closed")
	// ErrRequestInFlight is returned when a link request is made while one is pending.
	ErrRequestInFlight = errors.New("magic link request already in flight")
	// ErrTokenConsumed is returned when a magic link was already spent.
	ErrTokenConsumed = stores.ErrTokenConsumed
	// ErrSubmissionInFlight is returned when another submission for the same
	// single-use link has not finished yet.
	ErrSubmissionInFlight = stores.ErrTokenInFlight
	// ErrDuplicateSubmission is returned when a submission id was already claimed.
	ErrDuplicateSubmission = stores.ErrDuplicateSubmission
	// ErrLedgerUnavailable is returned when the submission ledger cannot be reached.
	ErrLedgerUnavailable = stores.ErrLedgerUnavailable
	// ErrBackendRejected is returned when the backend answered with a refusal.
	ErrBackendRejected = errors.New("backend rejected request")
	// ErrBackendUnavailable is returned when no usable backend answer was received.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrClientNotReady is returned by methods on a nil or unbuilt Client.
	ErrClientNotReady = errors.New("client not initialized")
)

// User-facing messages. Rejections deliberately share wording so the UI does
// not reveal whether a token or address is known to the backend.
const (
	MessageInvalidOrExpired  = "Invalid or expired magic link."
	MessageValidationFailed  = "Invalid or expired magic link. Please request a new one."
	MessageRequestFailed     = "Failed to send magic link. Please verify your email and try again."
	MessageTokenConsumed     = "This magic link has already been used. Please request a new one."
	MessageSubmitFailed      = "Failed to submit feedback. Please try again."
	MessageSubmitInvalid     = "Please check your feedback details and try again."
	MessageSubmitDuplicate   = "This feedback has already been submitted."
	MessageSubmitInFlight    = "Your feedback is already being submitted."
	MessageCaptchaRejected   = "Feedback could not be submitted. Please complete the captcha and try again."
	MessageSubmitSucceeded   = "Feedback submitted successfully!"
	MessageListUnavailable   = "Failed to load feedback."
	messageGenericFailure    = "Something went wrong. Please try again."
	messageSentTemplate      = "Magic link sent to %s. Please check your inbox and click the link to continue."
	messageInvalidEmailInput = "Please enter a valid email address."
)

// SubmissionError is the failure of a Submitter call. Message is safe to show
// to the user; the wrapped cause is for logs and errors.Is checks.
type SubmissionError struct {
	Message string
	cause   error
}

func (e *SubmissionError) Error() string {
	if e.cause == nil {
		return "submission failed: " + e.Message
	}
	return "submission failed: " + e.cause.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.cause
}

func newSubmissionError(message string, cause error) *SubmissionError {
	return &SubmissionError{Message: message, cause: cause}
}

// UserMessage maps any error returned by this package to text that can be
// rendered directly. It never includes backend detail.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *SubmissionError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}

	switch {
	case errors.Is(err, ErrInvalidEmail):
		return messageInvalidEmailInput
	case errors.Is(err, ErrInvalidFeedback):
		return MessageSubmitInvalid
	case errors.Is(err, ErrTokenConsumed):
		return MessageTokenConsumed
	case errors.Is(err, ErrDuplicateSubmission):
		return MessageSubmitDuplicate
	case errors.Is(err, ErrSubmissionInFlight):
		return MessageSubmitInFlight
	case errors.Is(err, ErrSessionNotAuthorized):
		return MessageInvalidOrExpired
	case errors.Is(err, ErrInvalidListQuery):
		return "Invalid listing parameters."
	case errors.Is(err, ErrRequestInFlight):
		return "A magic link request is already being sent."
	default:
		return messageGenericFailure
	}
}
