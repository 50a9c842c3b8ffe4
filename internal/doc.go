// Package internal contains helpers that are private to goFeedback, such as the
// redaction helpers used before anything derived from an email or token is logged.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Client backend operation
//   - stores: submission ledger (Redis and in-memory)
//   - telemetry: OpenTelemetry tracer provider setup for binaries
//   - testbackend: in-process fake of the feedback backend
//   - transport: JSON-over-HTTP backend client with tracing
//
// # What this package must NOT do
//
//   - Export types that appear in the public goFeedback API.
//   - Be imported by any package outside the goFeedback module.
package internal
