package flows

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// PostFunc posts body to path and decodes a 2xx answer into out.
type PostFunc func(ctx context.Context, op, path string, body, out any) error

// AuditFunc emits one audit event. emailHash is a fingerprint, never the address.
type AuditFunc func(ctx context.Context, eventType string, success bool, emailHash string, err error, metadata func() map[string]string)

// Observers groups the ambient side channels every flow reports to.
type Observers struct {
	Logger         *slog.Logger
	MetricInc      func(int)
	ObserveLatency func(int, time.Duration)
	EmitAudit      AuditFunc
	Now            func() time.Time
}

func normalizeObservers(o *Observers) {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.MetricInc == nil {
		o.MetricInc = func(int) {}
	}
	if o.ObserveLatency == nil {
		o.ObserveLatency = func(int, time.Duration) {}
	}
	if o.EmitAudit == nil {
		o.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// statusEnvelope is the {"status": ..., "message": ...} shape of link operations.
type statusEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e statusEnvelope) ok() bool {
	return e.Status == "success"
}
