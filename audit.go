package goFeedback

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goFeedback/internal/audit"
)

// AuditEvent is one audit record. It never carries a raw email or token.
type AuditEvent = audit.Event

// AuditSink receives audit events from the client's dispatcher goroutine.
type AuditSink = audit.Sink

type NoOpSink = audit.NoOpSink

type ChannelSink = audit.ChannelSink

type JSONWriterSink = audit.JSONWriterSink

type SlogSink = audit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink writes audit events through logger (slog.Default when nil).
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}
