package stores

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrDuplicateSubmission means the submission id was already claimed.
	ErrDuplicateSubmission = errors.New("submission already claimed")
	// ErrTokenConsumed means the token was already spent on a submission.
	ErrTokenConsumed = errors.New("magic link token already consumed")
	// ErrTokenInFlight means another submission currently holds the token.
	ErrTokenInFlight = errors.New("magic link token has a submission in flight")
	// ErrLedgerUnavailable wraps backing-store failures.
	ErrLedgerUnavailable = errors.New("submission ledger unavailable")
)

// Ledger records submission claims and consumed tokens.
type Ledger interface {
	// Begin claims submissionID. When tokenKey is non-empty it also claims the
	// token for this submission, failing with ErrTokenConsumed if the token was
	// spent and ErrTokenInFlight if another submission holds it.
	Begin(ctx context.Context, submissionID, tokenKey string, ttl time.Duration) error
	// MarkConsumed records tokenKey as spent and drops its in-flight claim. It
	// reports false when the token was already marked.
	MarkConsumed(ctx context.Context, tokenKey string, ttl time.Duration) (bool, error)
	// IsConsumed reports whether tokenKey was marked consumed.
	IsConsumed(ctx context.Context, tokenKey string) (bool, error)
	// Release drops the claim on submissionID, and on tokenKey when this
	// submission holds it, so a failed attempt can be retried.
	Release(ctx context.Context, submissionID, tokenKey string) error
}

// TokenKey derives the ledger key for an email/token pair.
func TokenKey(email, token string) string {
	if token == "" {
		return ""
	}
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
