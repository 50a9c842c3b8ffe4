// Package goFeedback is a client for a feedback backend that accepts rated
// feedback either behind a captcha or behind a one-time magic link.
//
// The core is the magic-link lifecycle: request a link by email, validate the
// emailed (email, token) pair, then spend it on exactly one submission.
// [Client] talks to the backend; [MagicLinkSession] and [RequestFlow] are the
// per-visitor state machines a frontend drives; [Submitter] is the gate that
// performs the final authorized call.
//
// Client methods are safe for concurrent use once returned by [Builder.Build].
// A MagicLinkSession or RequestFlow belongs to one visitor and is guarded
// internally, so it may also be shared across goroutines.
//
// # Architecture boundaries
//
// goFeedback is the public surface. Backend transport, flow orchestration,
// the submission ledger and audit dispatch live under internal/ and are never
// exported.
//
// # What this package must NOT do
//
//   - Put backend error text into a user-facing message. Rejections render one
//     of a fixed set of messages so the UI never reveals whether an address or
//     token exists.
//   - Log or audit a raw magic-link token.
//   - Retry a validation or a submission on its own.
package goFeedback
