package goFeedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goFeedback/internal"
)

// ErrTicketsDisabled is returned by ticket operations when Config.Ticket.Enabled is false.
var ErrTicketsDisabled = errors.New("authorization tickets disabled")

// ErrTicketInvalid is returned for tickets that fail verification.
var ErrTicketInvalid = errors.New("authorization ticket invalid")

// IssueTicket signs a ticket carrying an Authorized session's pair, so a
// later request can rebuild the session without validating again.
func (c *Client) IssueTicket(ctx context.Context, st SessionState) (string, error) {
	if c == nil {
		return "", ErrClientNotReady
	}
	if c.tickets == nil {
		return "", ErrTicketsDisabled
	}
	if st.Phase != PhaseAuthorized {
		return "", ErrSessionNotAuthorized
	}
	ticket, err := c.tickets.Issue(st.Email, st.Token)
	if err != nil {
		return "", err
	}
	c.metricInc(MetricTicketIssued)
	c.emitAudit(ctx, auditEventTicketIssued, true, internal.EmailFingerprint(st.Email), nil, nil)
	return ticket, nil
}

// ParseTicket verifies ticket and returns the pair it carries.
func (c *Client) ParseTicket(ticket string) (MagicLinkContext, error) {
	if c == nil {
		return MagicLinkContext{}, ErrClientNotReady
	}
	if c.tickets == nil {
		return MagicLinkContext{}, ErrTicketsDisabled
	}
	claims, err := c.tickets.Parse(ticket)
	if err != nil {
		c.metricInc(MetricTicketRejected)
		return MagicLinkContext{}, fmt.Errorf("%w: %v", ErrTicketInvalid, err)
	}
	return MagicLinkContext{Email: claims.Email, Token: claims.Token}, nil
}

// TicketCookieName is the cookie frontends store tickets in.
func (c *Client) TicketCookieName() string {
	return c.config.Ticket.CookieName
}

// TicketTTL is the lifetime of issued tickets.
func (c *Client) TicketTTL() time.Duration {
	return c.config.Ticket.TTL
}
