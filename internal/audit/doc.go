// Package audit implements async event dispatching for magic-link and feedback
// operations.
//
// # Components
//
//   - [Sink] is the consumer interface (channel, JSON lines, slog, no-op).
//   - [Dispatcher] is a buffered async relay that can drop when full.
//   - [Event] is the record: timestamp, type, email fingerprint, submission id, metadata.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. Which events are emitted is
// decided by the Client and the flow functions.
//
// Events never carry a raw email address or a magic-link token.
package audit
