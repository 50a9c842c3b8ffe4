package goFeedback

import "time"

// ClientReport summarizes the posture of a built client for startup logs and
// health endpoints. It contains no secrets.
type ClientReport struct {
	BackendBaseURL    string
	ValidationTimeout time.Duration
	SingleUseLinks    bool
	Ledger            LedgerKind
	TicketsEnabled    bool
	TicketAlgorithm   string
	TicketTTL         time.Duration
	AuditEnabled      bool
	AuditDropped      uint64
	MetricsEnabled    bool
	LatencyHistograms bool
}

func (c *Client) Report() ClientReport {
	if c == nil {
		return ClientReport{}
	}

	r := ClientReport{
		BackendBaseURL:    c.config.Backend.BaseURL,
		ValidationTimeout: c.config.Validation.Timeout,
		SingleUseLinks:    c.config.Submission.SingleUse,
		Ledger:            c.ledgerKind,
		TicketsEnabled:    c.tickets != nil,
		AuditEnabled:      c.config.Audit.Enabled,
		AuditDropped:      c.AuditDropped(),
		MetricsEnabled:    c.metrics.Enabled(),
		LatencyHistograms: c.metrics.LatencyEnabled(),
	}
	if r.TicketsEnabled {
		r.TicketAlgorithm = c.config.Ticket.SigningMethod
		r.TicketTTL = c.config.Ticket.TTL
	}
	return r
}
