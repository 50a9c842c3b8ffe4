package goFeedback

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goFeedback/internal/audit"
	"github.com/MrEthical07/goFeedback/internal/flows"
	"github.com/MrEthical07/goFeedback/internal/transport"
)

const (
	auditEventMagicLinkRequest        = "magic_link_request"
	auditEventMagicLinkValidate       = "magic_link_validate"
	auditEventFeedbackSubmitCaptcha   = "feedback_submit_captcha"
	auditEventFeedbackSubmitMagicLink = "feedback_submit_magic_link"
	auditEventFeedbackList            = "feedback_list"
	auditEventTicketIssued            = "ticket_issued"
)

// AuditErrorCode is the coarse error class recorded in audit events.
type AuditErrorCode string

const (
	auditErrInvalidInput    AuditErrorCode = "invalid_input"
	auditErrInvalidLink     AuditErrorCode = "invalid_or_expired"
	auditErrTokenConsumed   AuditErrorCode = "token_consumed"
	auditErrDuplicate       AuditErrorCode = "duplicate"
	auditErrInFlight        AuditErrorCode = "submission_in_flight"
	auditErrRejected        AuditErrorCode = "backend_rejected"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrLedger          AuditErrorCode = "ledger_unavailable"
	auditErrNotAuthorized   AuditErrorCode = "not_authorized"
	auditErrInternal        AuditErrorCode = "internal_error"
	auditErrTransportFailed AuditErrorCode = "transport_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	emailHash string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		EmailHash: emailHash,
		RequestID: requestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if id, ok := metadata["submission_id"]; ok {
		event.SubmissionID = id
		delete(metadata, "submission_id")
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidFeedback),
		errors.Is(err, ErrInvalidListQuery):
		return auditErrInvalidInput
	case errors.Is(err, flows.ErrLinkInvalid):
		return auditErrInvalidLink
	case errors.Is(err, flows.ErrLinkTransport):
		return auditErrTransportFailed
	case errors.Is(err, ErrTokenConsumed):
		return auditErrTokenConsumed
	case errors.Is(err, ErrDuplicateSubmission):
		return auditErrDuplicate
	case errors.Is(err, ErrSubmissionInFlight):
		return auditErrInFlight
	case errors.Is(err, ErrLedgerUnavailable):
		return auditErrLedger
	case errors.Is(err, ErrSessionNotAuthorized):
		return auditErrNotAuthorized
	case errors.Is(err, ErrBackendRejected),
		errors.Is(err, flows.ErrNotAccepted):
		return auditErrRejected
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, transport.ErrTransport):
		return auditErrUnavailable
	}

	var se *transport.StatusError
	switch {
	case errors.As(err, &se) && se.ServerSide():
		return auditErrUnavailable
	case errors.As(err, &se):
		return auditErrRejected
	default:
		return auditErrInternal
	}
}
