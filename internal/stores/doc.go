// Package stores provides the submission ledger: short-lived records that make
// feedback submission exactly-once per logical submission and keep magic-link
// tokens single-use on the client side.
//
// # Design
//
// Two implementations share the [Ledger] contract. [RedisLedger] keeps records
// in Redis so every replica of a frontend sees the same claims; the begin step
// runs as one Lua script so the consumed-token check and the submission claim
// cannot interleave. [MemoryLedger] keeps the same records in process for
// single-instance deployments and tests.
//
// Token records are keyed by a BLAKE2b-256 digest of the normalized email and
// token, so the ledger never stores a usable token.
//
// # What this package must NOT do
//
//   - Import goFeedback or any sibling internal package.
//   - Log or persist plaintext tokens.
//   - Decide user-facing messages; callers map the sentinel errors.
package stores
