package goFeedback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// RequestFlow is the "send me a link" form: Idle, Sending, then Sent or
// Failed. At most one request is in flight; there are no retries.
type RequestFlow struct {
	client *Client

	mu        sync.Mutex
	state     RequestLinkState
	observers map[uint64]func(RequestLinkState)
	nextObs   uint64
	pending   []RequestLinkState
	draining  bool

	closed atomic.Bool
}

func newRequestFlow(c *Client) *RequestFlow {
	return &RequestFlow{
		client:    c,
		state:     RequestLinkState{Status: RequestIdle},
		observers: make(map[uint64]func(RequestLinkState)),
	}
}

// State returns the current snapshot.
func (f *RequestFlow) State() RequestLinkState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Request submits email. An empty address, or a malformed one when
// Request.CheckFormat is set, returns ErrInvalidEmail and leaves the state
// untouched; a call while Sending returns ErrRequestInFlight with
// the unchanged Sending state. Neither reaches the backend.
func (f *RequestFlow) Request(ctx context.Context, email string) (RequestLinkState, error) {
	email = strings.TrimSpace(email)

	f.mu.Lock()
	if f.closed.Load() {
		st := f.state
		f.mu.Unlock()
		return st, ErrSessionClosed
	}
	if err := f.client.checkRequestEmail(email); err != nil {
		st := f.state
		f.mu.Unlock()
		return st, err
	}
	if f.state.Status == RequestSending {
		st := f.state
		f.mu.Unlock()
		return st, ErrRequestInFlight
	}
	f.setStateLocked(RequestLinkState{Status: RequestSending, TargetEmail: email})
	f.mu.Unlock()
	f.flush()

	err := f.client.RequestMagicLink(ctx, email)

	f.mu.Lock()
	if f.closed.Load() {
		st := f.state
		f.mu.Unlock()
		return st, ErrSessionClosed
	}
	if err != nil {
		f.setStateLocked(RequestLinkState{Status: RequestFailed, TargetEmail: email, Message: MessageRequestFailed})
	} else {
		f.setStateLocked(RequestLinkState{Status: RequestSent, TargetEmail: email, Message: SentMessage(email)})
	}
	st := f.state
	f.mu.Unlock()
	f.flush()
	return st, err
}

// SentMessage renders the confirmation for the current target, or "" when
// nothing was sent.
func (f *RequestFlow) SentMessage() string {
	st := f.State()
	if st.Status != RequestSent {
		return ""
	}
	return SentMessage(st.TargetEmail)
}

// SentMessage renders the confirmation shown after a link was sent to email.
func SentMessage(email string) string {
	return fmt.Sprintf(messageSentTemplate, email)
}

// Subscribe registers fn for state changes. The returned func removes it.
func (f *RequestFlow) Subscribe(fn func(RequestLinkState)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed.Load() {
		return func() {}
	}
	id := f.nextObs
	f.nextObs++
	f.observers[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.observers, id)
		f.mu.Unlock()
	}
}

// Close stops state updates and notifications. A request in flight completes
// against the backend but its result is dropped.
func (f *RequestFlow) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	f.mu.Lock()
	f.observers = map[uint64]func(RequestLinkState){}
	f.pending = nil
	f.mu.Unlock()
}

func (f *RequestFlow) setStateLocked(st RequestLinkState) {
	f.state = st
	f.pending = append(f.pending, st)
}

func (f *RequestFlow) flush() {
	f.mu.Lock()
	if f.draining {
		f.mu.Unlock()
		return
	}
	f.draining = true
	for len(f.pending) > 0 && !f.closed.Load() {
		st := f.pending[0]
		f.pending = f.pending[1:]
		fns := make([]func(RequestLinkState), 0, len(f.observers))
		for id := uint64(0); id < f.nextObs; id++ {
			if fn, ok := f.observers[id]; ok {
				fns = append(fns, fn)
			}
		}
		f.mu.Unlock()
		for _, fn := range fns {
			if f.closed.Load() {
				break
			}
			fn(st)
		}
		f.mu.Lock()
	}
	f.draining = false
	f.mu.Unlock()
}
