package stores

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryLedger is an in-process Ledger. Expired records are swept lazily.
type MemoryLedger struct {
	mu       sync.Mutex
	now      func() time.Time
	claims   map[string]time.Time
	inflight map[string]tokenClaim
	used     map[string]time.Time
}

type tokenClaim struct {
	submissionID string
	expires      time.Time
}

// NewMemoryLedger returns an empty in-process ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		now:      time.Now,
		claims:   make(map[string]time.Time),
		inflight: make(map[string]tokenClaim),
		used:     make(map[string]time.Time),
	}
}

func (l *MemoryLedger) Begin(_ context.Context, submissionID, tokenKey string, ttl time.Duration) error {
	if submissionID == "" {
		return errors.New("submission id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	if tokenKey != "" {
		if _, ok := l.used[tokenKey]; ok {
			return ErrTokenConsumed
		}
	}
	if _, ok := l.claims[submissionID]; ok {
		return ErrDuplicateSubmission
	}
	if tokenKey != "" {
		if _, ok := l.inflight[tokenKey]; ok {
			return ErrTokenInFlight
		}
		l.inflight[tokenKey] = tokenClaim{submissionID: submissionID, expires: now.Add(ttl)}
	}
	l.claims[submissionID] = now.Add(ttl)
	return nil
}

func (l *MemoryLedger) MarkConsumed(_ context.Context, tokenKey string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	delete(l.inflight, tokenKey)
	if _, ok := l.used[tokenKey]; ok {
		return false, nil
	}
	l.used[tokenKey] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLedger) IsConsumed(_ context.Context, tokenKey string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(l.now())
	_, ok := l.used[tokenKey]
	return ok, nil
}

func (l *MemoryLedger) Release(_ context.Context, submissionID, tokenKey string) error {
	l.mu.Lock()
	delete(l.claims, submissionID)
	if c, ok := l.inflight[tokenKey]; ok && c.submissionID == submissionID {
		delete(l.inflight, tokenKey)
	}
	l.mu.Unlock()
	return nil
}

func (l *MemoryLedger) sweepLocked(now time.Time) {
	for k, exp := range l.claims {
		if !now.Before(exp) {
			delete(l.claims, k)
		}
	}
	for k, c := range l.inflight {
		if !now.Before(c.expires) {
			delete(l.inflight, k)
		}
	}
	for k, exp := range l.used {
		if !now.Before(exp) {
			delete(l.used, k)
		}
	}
}
