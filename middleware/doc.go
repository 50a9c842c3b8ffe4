// Package middleware exposes HTTP adapters that carry an authorized
// magic-link session between requests using signed tickets.
//
// # Guards
//
//   - [RequireTicket] verifies the ticket and rebuilds the session.
//   - [SetTicketCookie] / [ClearTicketCookie] manage the ticket cookie.
//
// The guard reads the ticket cookie or an Authorization bearer header, calls
// Client.ParseTicket and Client.ResumeAuthorized, and injects the session
// into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Client calls. Ticket
// verification and single-use bookkeeping are delegated to the Client.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Reveal why a ticket was refused; every refusal gets the same 401 body.
package middleware
