// Package flows contains pure-function orchestrators for every Client backend
// operation.
//
// Each flow function (RunRequestMagicLink, RunValidateMagicLink, RunSubmit,
// RunListFeedback) accepts a typed dependency struct and returns results without
// side-effects beyond those dependencies. This keeps the Client type thin and
// lets tests drive a flow with plain closures.
//
// # Architecture boundaries
//
// Flow functions coordinate the backend transport, the submission ledger, audit
// dispatch, metrics and logging. They do NOT own any of these resources;
// ownership stays with the Client.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goFeedback (to avoid import cycles).
//   - Put raw backend error text into anything a caller may render.
package flows
