package goFeedback

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// EventKind distinguishes session notifications.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventSubmitted
	EventSubmitFailed
)

// SessionEvent is delivered to session subscribers. Ack is set for
// EventSubmitted, Err for EventSubmitFailed.
type SessionEvent struct {
	Kind  EventKind
	State SessionState
	Ack   *SubmissionAck
	Err   error
}

// MagicLinkSession drives one visitor from an (email, token) pair to either
// Authorized or Rejected. Each distinct pair is validated at most once; a
// result that arrives after the session moved to another pair, or after
// Close, is discarded.
type MagicLinkSession struct {
	client *Client
	group  singleflight.Group

	lifetime context.Context
	stop     context.CancelFunc

	mu        sync.Mutex
	state     SessionState
	current   MagicLinkContext
	resolved  bool
	epoch     uint64
	observers map[uint64]func(SessionEvent)
	nextObs   uint64
	pending   []SessionEvent
	draining  bool

	closed atomic.Bool
}

func newMagicLinkSession(c *Client, state SessionState) *MagicLinkSession {
	lifetime, stop := context.WithCancel(context.Background())
	return &MagicLinkSession{
		client:    c,
		lifetime:  lifetime,
		stop:      stop,
		state:     state,
		observers: make(map[uint64]func(SessionEvent)),
	}
}

// State returns the current snapshot.
func (s *MagicLinkSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Evaluate moves the session according to mc and returns the resulting state.
//
// An incomplete pair yields AwaitingInput with no backend call. A pair already
// resolved returns its cached state; a pair being validated joins the call in
// flight. A new pair supersedes any earlier one and is validated once.
// Evaluate on a closed session returns the last state unchanged.
func (s *MagicLinkSession) Evaluate(ctx context.Context, mc MagicLinkContext) SessionState {
	s.mu.Lock()
	if s.closed.Load() {
		st := s.state
		s.mu.Unlock()
		return st
	}

	if !mc.Complete() {
		if s.current != mc || s.state.Phase != PhaseAwaitingInput {
			s.epoch++
			s.current = mc
			s.resolved = true
			s.setStateLocked(SessionState{Phase: PhaseAwaitingInput})
		}
		st := s.state
		s.mu.Unlock()
		s.flush()
		return st
	}

	if mc == s.current && s.epochStarted() {
		if s.resolved {
			st := s.state
			s.mu.Unlock()
			s.client.metricInc(MetricEvaluateDeduped)
			return st
		}
		s.client.metricInc(MetricEvaluateDeduped)
	} else {
		s.epoch++
		s.current = mc
		s.resolved = false
		s.setStateLocked(SessionState{Phase: PhaseValidating, Email: mc.Email})
	}
	epoch := s.epoch
	s.mu.Unlock()
	s.flush()

	_, _, _ = s.group.Do(strconv.FormatUint(epoch, 10), func() (any, error) {
		s.validateEpoch(ctx, epoch, mc)
		return nil, nil
	})
	s.flush()
	return s.State()
}

// validateEpoch performs the single validation call for epoch and applies the
// outcome if the session is still on that epoch.
func (s *MagicLinkSession) validateEpoch(ctx context.Context, epoch uint64, mc MagicLinkContext) {
	s.mu.Lock()
	if s.closed.Load() || s.epoch != epoch || s.resolved {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	vctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	unhook := context.AfterFunc(s.lifetime, cancel)
	defer unhook()
	outcome := s.client.ValidateMagicLink(vctx, mc.Email, mc.Token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() || s.epoch != epoch {
		s.client.metricInc(MetricStaleResultDiscarded)
		return
	}
	if !s.resolved {
		s.resolved = true
		s.setStateLocked(stateForOutcome(mc, outcome))
	}
}

// epochStarted reports whether any pair was ever evaluated. Caller holds mu.
func (s *MagicLinkSession) epochStarted() bool {
	return s.epoch > 0 || s.resolved
}

func stateForOutcome(mc MagicLinkContext, o ValidationOutcome) SessionState {
	switch o.Kind {
	case OutcomeSuccess:
		return SessionState{Phase: PhaseAuthorized, Email: mc.Email, Token: mc.Token}
	case OutcomeInvalidOrExpired:
		return SessionState{Phase: PhaseRejected, Email: mc.Email, Reason: MessageInvalidOrExpired}
	default:
		return SessionState{Phase: PhaseRejected, Email: mc.Email, Reason: MessageValidationFailed}
	}
}

// Submitter returns the gate for the authorized pair. Asking before the
// session is Authorized is a programming error and returns ErrSessionNotAuthorized.
func (s *MagicLinkSession) Submitter() (*MagicLinkSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if s.state.Phase != PhaseAuthorized {
		return nil, ErrSessionNotAuthorized
	}
	return &MagicLinkSubmission{
		session: s,
		client:  s.client,
		email:   s.state.Email,
		token:   s.state.Token,
	}, nil
}

// Subscribe registers fn for state changes and submission reports. Events
// are delivered in order, outside the session lock. The returned func removes fn.
func (s *MagicLinkSession) Subscribe(fn func(SessionEvent)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return func() {}
	}
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Close is the liveness guard: afterwards no result is applied and no
// subscriber is called. Close is idempotent.
func (s *MagicLinkSession) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.stop()
	s.mu.Lock()
	s.observers = map[uint64]func(SessionEvent){}
	s.pending = nil
	s.mu.Unlock()
}

// consume moves the session to Rejected once its pair has been spent.
func (s *MagicLinkSession) consume(email, token string) {
	s.mu.Lock()
	if s.closed.Load() || !s.holdsLocked(email, token) {
		s.mu.Unlock()
		return
	}
	if s.state.Phase != PhaseRejected || s.state.Reason != MessageTokenConsumed {
		s.setStateLocked(SessionState{Phase: PhaseRejected, Email: email, Reason: MessageTokenConsumed})
	}
	s.mu.Unlock()
}

// holds reports whether the session is still on the given pair.
func (s *MagicLinkSession) holds(email, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdsLocked(email, token)
}

func (s *MagicLinkSession) holdsLocked(email, token string) bool {
	return s.current.Email == email && s.current.Token == token
}

// report queues a submission event for the pair's subscribers. Reports for a
// pair the session has moved away from are dropped.
func (s *MagicLinkSession) report(email, token string, ev SessionEvent) {
	s.mu.Lock()
	if s.closed.Load() || !s.holdsLocked(email, token) {
		s.mu.Unlock()
		return
	}
	ev.State = s.state
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	s.flush()
}

func (s *MagicLinkSession) setStateLocked(st SessionState) {
	s.state = st
	s.pending = append(s.pending, SessionEvent{Kind: EventStateChanged, State: st})
}

// flush delivers queued events. Only one goroutine drains at a time, so
// subscribers see events in the order they were queued, and a subscriber may
// call back into the session.
func (s *MagicLinkSession) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 && !s.closed.Load() {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		fns := s.snapshotObserversLocked()
		s.mu.Unlock()
		for _, fn := range fns {
			if s.closed.Load() {
				break
			}
			fn(ev)
		}
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

func (s *MagicLinkSession) snapshotObserversLocked() []func(SessionEvent) {
	if len(s.observers) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(SessionEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	return fns
}
