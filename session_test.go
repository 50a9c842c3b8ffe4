package goFeedback

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goFeedback/internal/testbackend"
)

func TestSessionIncompleteContextSkipsBackend(t *testing.T) {
	c, backend := newTestClient(t, nil)
	s := c.NewSession()
	defer s.Close()

	cases := []MagicLinkContext{
		{},
		{Email: "visitor@example.com"},
		{Token: "abc"},
	}
	for _, mc := range cases {
		st := s.Evaluate(context.Background(), mc)
		if st.Phase != PhaseAwaitingInput {
			t.Fatalf("%+v: expected awaiting_input, got %s", mc, st.Phase)
		}
		if !st.ShowsRequestForm() {
			t.Fatalf("%+v: request form should be offered", mc)
		}
	}
	if n := backend.Calls(testbackend.EndpointValidate); n != 0 {
		t.Fatalf("expected no validation calls, got %d", n)
	}
}

func TestSessionValidLinkAuthorizesThenSubmitSpendsIt(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	s := c.NewSession()
	defer s.Close()

	st := s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
	if st.Phase != PhaseAuthorized || st.Email != "visitor@example.com" || st.Token != token {
		t.Fatalf("expected authorized, got %+v", st)
	}
	if st.View() != ViewFeedbackForm {
		t.Fatalf("expected feedback form view, got %v", st.View())
	}

	sub, err := s.Submitter()
	if err != nil {
		t.Fatalf("Submitter: %v", err)
	}
	if sub.Email() != "visitor@example.com" {
		t.Fatalf("unexpected submitter email %q", sub.Email())
	}
	data := feedbackFor("visitor@example.com")
	ack, err := sub.Submit(context.Background(), NewFeedbackSubmission(data))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ack.Message == "" || ack.SubmissionID == "" {
		t.Fatalf("incomplete ack: %+v", ack)
	}
	if len(backend.Records()) != 1 {
		t.Fatalf("expected one stored record, got %d", len(backend.Records()))
	}

	raw := backend.LastBody(testbackend.EndpointMagicFeedback)
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		t.Fatalf("decode submitted body: %v", err)
	}
	if len(top) != 2 || top["feedback_data"] == nil || top["validation"] == nil {
		t.Fatalf("body must hold exactly feedback_data and validation: %s", raw)
	}

	var sent FeedbackData
	if err := json.Unmarshal(top["feedback_data"], &sent); err != nil {
		t.Fatalf("decode feedback_data: %v", err)
	}
	if sent != data {
		t.Fatalf("feedback_data = %+v, want %+v", sent, data)
	}
	var fields map[string]any
	if err := json.Unmarshal(top["feedback_data"], &fields); err != nil {
		t.Fatalf("decode feedback_data fields: %v", err)
	}
	if _, ok := fields["mobile"]; ok {
		t.Fatalf("empty mobile must be omitted: %v", fields)
	}
	if fields["rating"] != float64(data.Rating) {
		t.Fatalf("rating not sent as a number: %v", fields["rating"])
	}
	if _, ok := fields["captcha_token"]; ok {
		t.Fatal("magic-link submission must not carry a captcha token")
	}

	var pair map[string]string
	if err := json.Unmarshal(top["validation"], &pair); err != nil {
		t.Fatalf("decode validation: %v", err)
	}
	if len(pair) != 2 || pair["email"] != "visitor@example.com" || pair["token"] != token {
		t.Fatalf("validation pair not sent: %v", pair)
	}

	st = s.State()
	if st.Phase != PhaseRejected || st.Reason != MessageTokenConsumed {
		t.Fatalf("expected session rejected as consumed, got %+v", st)
	}

	_, err = sub.Submit(context.Background(), NewFeedbackSubmission(feedbackFor("visitor@example.com")))
	if !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed, got %v", err)
	}
	if n := backend.Calls(testbackend.EndpointMagicFeedback); n != 1 {
		t.Fatalf("spent link must not reach backend again, got %d calls", n)
	}
	if _, err := s.Submitter(); !errors.Is(err, ErrSessionNotAuthorized) {
		t.Fatalf("expected ErrSessionNotAuthorized after spend, got %v", err)
	}
}

func TestSessionReusableLinkWhenSingleUseDisabled(t *testing.T) {
	c, backend := newTestClient(t, func(cfg *Config) { cfg.Submission.SingleUse = false })
	token := backend.Issue("visitor@example.com")
	s := c.NewSession()
	defer s.Close()

	s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
	sub, err := s.Submitter()
	if err != nil {
		t.Fatalf("Submitter: %v", err)
	}
	if _, err := sub.Submit(context.Background(), NewFeedbackSubmission(feedbackFor("visitor@example.com"))); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if st := s.State(); st.Phase != PhaseAuthorized {
		t.Fatalf("expected session to stay authorized, got %+v", st)
	}
}

func TestSessionInvalidLinkRejected(t *testing.T) {
	c, backend := newTestClient(t, nil)
	backend.Issue("visitor@example.com")
	s := c.NewSession()
	defer s.Close()

	st := s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: "forged"})
	if st.Phase != PhaseRejected || st.Reason != MessageInvalidOrExpired {
		t.Fatalf("expected rejected, got %+v", st)
	}
	if !st.ShowsRequestForm() {
		t.Fatal("rejected session should offer the request form")
	}
	if _, err := s.Submitter(); !errors.Is(err, ErrSessionNotAuthorized) {
		t.Fatalf("expected ErrSessionNotAuthorized, got %v", err)
	}
}

func TestSessionExpiredLinkRejected(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	backend.SetClock(func() time.Time { return time.Now().Add(48 * time.Hour) })

	s := c.NewSession()
	defer s.Close()
	st := s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
	if st.Phase != PhaseRejected || st.Reason != MessageInvalidOrExpired {
		t.Fatalf("expected expired link rejected, got %+v", st)
	}
}

func TestSessionTransportFailuresFailClosed(t *testing.T) {
	cases := []struct {
		name     string
		override testbackend.Override
	}{
		{name: "server error", override: testbackend.Override{Status: 500, Body: `{"detail":"database exploded"}`}},
		{name: "bad gateway", override: testbackend.Override{Status: 502, Body: `upstream gone`}},
		{name: "connection dropped", override: testbackend.Override{Hijack: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, backend := newTestClient(t, nil)
			token := backend.Issue("visitor@example.com")
			backend.SetOverride(testbackend.EndpointValidate, tc.override)

			s := c.NewSession()
			defer s.Close()
			st := s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
			if st.Phase != PhaseRejected || st.Reason != MessageValidationFailed {
				t.Fatalf("expected rejected with validation failure, got %+v", st)
			}
			if got := c.MetricsSnapshot().Counters[MetricValidateTransportError]; got != 1 {
				t.Fatalf("expected one transport error, got %d", got)
			}
		})
	}
}

func TestSessionReasonNeverCarriesBackendText(t *testing.T) {
	c, backend := newTestClient(t, nil)
	backend.SetOverride(testbackend.EndpointValidate, testbackend.Override{
		Status: 400,
		Body:   `{"detail":"token 7f3a belongs to admin@example.com"}`,
	})
	s := c.NewSession()
	defer s.Close()

	st := s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: "7f3a"})
	if strings.Contains(st.Reason, "admin") || strings.Contains(st.Reason, "7f3a") {
		t.Fatalf("reason leaked backend detail: %q", st.Reason)
	}
	if st.Reason != MessageInvalidOrExpired {
		t.Fatalf("unexpected reason %q", st.Reason)
	}
}

func TestSessionEvaluateSamePairOnce(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	s := c.NewSession()
	defer s.Close()
	mc := MagicLinkContext{Email: "visitor@example.com", Token: token}

	for i := 0; i < 3; i++ {
		if st := s.Evaluate(context.Background(), mc); st.Phase != PhaseAuthorized {
			t.Fatalf("evaluation %d: expected authorized, got %+v", i, st)
		}
	}
	if n := backend.Calls(testbackend.EndpointValidate); n != 1 {
		t.Fatalf("expected one validation call, got %d", n)
	}
	if got := c.MetricsSnapshot().Counters[MetricEvaluateDeduped]; got != 2 {
		t.Fatalf("expected 2 deduped evaluations, got %d", got)
	}
}

func TestSessionRejectedPairNotRevalidated(t *testing.T) {
	c, backend := newTestClient(t, nil)
	s := c.NewSession()
	defer s.Close()
	mc := MagicLinkContext{Email: "visitor@example.com", Token: "forged"}

	s.Evaluate(context.Background(), mc)
	s.Evaluate(context.Background(), mc)
	if n := backend.Calls(testbackend.EndpointValidate); n != 1 {
		t.Fatalf("expected one validation call, got %d", n)
	}
}

func TestSessionConcurrentEvaluateDeduped(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	backend.SetOverride(testbackend.EndpointValidate, testbackend.Override{Delay: 50 * time.Millisecond})
	s := c.NewSession()
	defer s.Close()
	mc := MagicLinkContext{Email: "visitor@example.com", Token: token}

	const workers = 16
	var wg sync.WaitGroup
	states := make([]SessionState, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states[i] = s.Evaluate(context.Background(), mc)
		}(i)
	}
	wg.Wait()

	for i, st := range states {
		if st.Phase != PhaseAuthorized {
			t.Fatalf("worker %d: expected authorized, got %+v", i, st)
		}
	}
	if n := backend.Calls(testbackend.EndpointValidate); n != 1 {
		t.Fatalf("expected exactly one validation call, got %d", n)
	}
}

func TestSessionStaleResultDiscarded(t *testing.T) {
	c, backend := newTestClient(t, nil)
	first := backend.Issue("first@example.com")
	second := backend.Issue("second@example.com")
	backend.SetOverride(testbackend.EndpointValidate, testbackend.Override{Delay: 150 * time.Millisecond})
	s := c.NewSession()
	defer s.Close()

	done := make(chan SessionState, 1)
	go func() {
		done <- s.Evaluate(context.Background(), MagicLinkContext{Email: "first@example.com", Token: first})
	}()
	waitFor(t, "first validation to reach backend", func() bool {
		return backend.Calls(testbackend.EndpointValidate) == 1
	})

	st := s.Evaluate(context.Background(), MagicLinkContext{Email: "second@example.com", Token: second})
	if st.Phase != PhaseAuthorized || st.Email != "second@example.com" {
		t.Fatalf("expected second pair authorized, got %+v", st)
	}

	<-done
	st = s.State()
	if st.Email != "second@example.com" {
		t.Fatalf("stale result overwrote state: %+v", st)
	}
	if got := c.MetricsSnapshot().Counters[MetricStaleResultDiscarded]; got != 1 {
		t.Fatalf("expected one discarded result, got %d", got)
	}
}

func TestSessionIncompleteContextResetsState(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	s := c.NewSession()
	defer s.Close()

	s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
	st := s.Evaluate(context.Background(), MagicLinkContext{})
	if st.Phase != PhaseAwaitingInput || st.Email != "" || st.Token != "" {
		t.Fatalf("expected reset to awaiting_input, got %+v", st)
	}
}

func TestSessionCloseDiscardsInFlightResult(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	backend.SetOverride(testbackend.EndpointValidate, testbackend.Override{Delay: 500 * time.Millisecond})
	s := c.NewSession()

	var mu sync.Mutex
	var closed bool
	var lateEvents int
	s.Subscribe(func(SessionEvent) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			lateEvents++
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
	}()
	waitFor(t, "validation to reach backend", func() bool {
		return backend.Calls(testbackend.EndpointValidate) == 1
	})

	mu.Lock()
	closed = true
	mu.Unlock()
	s.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the validation in flight")
	}

	if st := s.State(); st.Phase != PhaseValidating {
		t.Fatalf("closed session must keep its last state, got %+v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if lateEvents != 0 {
		t.Fatalf("subscriber called %d times after Close", lateEvents)
	}
	if got := c.MetricsSnapshot().Counters[MetricStaleResultDiscarded]; got != 1 {
		t.Fatalf("expected one discarded result, got %d", got)
	}
	if _, err := s.Submitter(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	s.Close()
}

func TestSessionEvaluateAfterCloseIsNoop(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	s := c.NewSession()
	s.Close()

	st := s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
	if st.Phase != PhaseAwaitingInput {
		t.Fatalf("expected unchanged state, got %+v", st)
	}
	if n := backend.Calls(testbackend.EndpointValidate); n != 0 {
		t.Fatalf("closed session must not validate, got %d calls", n)
	}
}

func TestSessionValidationTimeoutFailsClosed(t *testing.T) {
	c, backend := newTestClient(t, func(cfg *Config) { cfg.Validation.Timeout = 50 * time.Millisecond })
	token := backend.Issue("visitor@example.com")
	backend.SetOverride(testbackend.EndpointValidate, testbackend.Override{Delay: time.Second})
	s := c.NewSession()
	defer s.Close()

	start := time.Now()
	st := s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
	if st.Phase != PhaseRejected || st.Reason != MessageValidationFailed {
		t.Fatalf("expected timeout to reject, got %+v", st)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
}

func TestSessionCallerCancelDoesNotAbortValidation(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	backend.SetOverride(testbackend.EndpointValidate, testbackend.Override{Delay: 100 * time.Millisecond})
	s := c.NewSession()
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	st := s.Evaluate(ctx, MagicLinkContext{Email: "visitor@example.com", Token: token})
	if st.Phase != PhaseAuthorized {
		t.Fatalf("expected validation to finish despite caller cancel, got %+v", st)
	}
}

func TestSessionSubscribeOrdering(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	s := c.NewSession()
	defer s.Close()

	var got []string
	cancel := s.Subscribe(func(ev SessionEvent) {
		switch ev.Kind {
		case EventStateChanged:
			got = append(got, ev.State.Phase.String())
		case EventSubmitted:
			got = append(got, "submitted")
		case EventSubmitFailed:
			got = append(got, "submit_failed")
		}
	})

	s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
	sub, err := s.Submitter()
	if err != nil {
		t.Fatalf("Submitter: %v", err)
	}
	if _, err := sub.Submit(context.Background(), NewFeedbackSubmission(feedbackFor("visitor@example.com"))); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, _ = sub.Submit(context.Background(), NewFeedbackSubmission(feedbackFor("visitor@example.com")))

	want := []string{"validating", "authorized", "rejected", "submitted", "submit_failed"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}

	cancel()
	s.Evaluate(context.Background(), MagicLinkContext{})
	if len(got) != len(want) {
		t.Fatalf("cancelled subscriber still notified: %v", got)
	}
}

func TestSessionStaleSubmitterRefused(t *testing.T) {
	c, backend := newTestClient(t, nil)
	first := backend.Issue("first@example.com")
	second := backend.Issue("second@example.com")
	s := c.NewSession()
	defer s.Close()

	s.Evaluate(context.Background(), MagicLinkContext{Email: "first@example.com", Token: first})
	stale, err := s.Submitter()
	if err != nil {
		t.Fatalf("Submitter: %v", err)
	}
	if st := s.Evaluate(context.Background(), MagicLinkContext{Email: "second@example.com", Token: second}); st.Phase != PhaseAuthorized {
		t.Fatalf("expected second pair authorized, got %+v", st)
	}

	var reports int
	s.Subscribe(func(ev SessionEvent) {
		if ev.Kind != EventStateChanged {
			reports++
		}
	})

	_, err = stale.Submit(context.Background(), NewFeedbackSubmission(feedbackFor("first@example.com")))
	if !errors.Is(err, ErrSessionNotAuthorized) {
		t.Fatalf("expected ErrSessionNotAuthorized, got %v", err)
	}
	if UserMessage(err) != MessageInvalidOrExpired {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
	if n := backend.Calls(testbackend.EndpointMagicFeedback); n != 0 {
		t.Fatalf("stale gate must not reach the backend, got %d calls", n)
	}
	if reports != 0 {
		t.Fatalf("stale gate reported %d events against the new pair", reports)
	}
	if st := s.State(); st.Phase != PhaseAuthorized || st.Email != "second@example.com" {
		t.Fatalf("second pair state disturbed: %+v", st)
	}

	current, err := s.Submitter()
	if err != nil {
		t.Fatalf("Submitter: %v", err)
	}
	if _, err := current.Submit(context.Background(), NewFeedbackSubmission(feedbackFor("second@example.com"))); err != nil {
		t.Fatalf("current gate Submit: %v", err)
	}
	if reports != 1 {
		t.Fatalf("expected one report from the current gate, got %d", reports)
	}
}

func TestSessionSubmitInvalidFeedbackSkipsBackend(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	s := c.NewSession()
	defer s.Close()
	s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})

	sub, err := s.Submitter()
	if err != nil {
		t.Fatalf("Submitter: %v", err)
	}
	data := feedbackFor("visitor@example.com")
	data.Rating = 9
	_, err = sub.Submit(context.Background(), NewFeedbackSubmission(data))
	if !errors.Is(err, ErrInvalidFeedback) {
		t.Fatalf("expected ErrInvalidFeedback, got %v", err)
	}
	if UserMessage(err) != MessageSubmitInvalid {
		t.Fatalf("unexpected user message %q", UserMessage(err))
	}
	if n := backend.Calls(testbackend.EndpointMagicFeedback); n != 0 {
		t.Fatalf("expected no backend call, got %d", n)
	}
	if st := s.State(); st.Phase != PhaseAuthorized {
		t.Fatalf("local validation failure must not spend the link, got %+v", st)
	}
}

func TestSessionSubmitBackendRejectionKeepsLink(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")
	s := c.NewSession()
	defer s.Close()
	s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})

	sub, err := s.Submitter()
	if err != nil {
		t.Fatalf("Submitter: %v", err)
	}
	_, err = sub.Submit(context.Background(), NewFeedbackSubmission(feedbackFor("someone-else@example.com")))
	if !errors.Is(err, ErrBackendRejected) {
		t.Fatalf("expected ErrBackendRejected, got %v", err)
	}
	var serr *SubmissionError
	if !errors.As(err, &serr) || serr.Message != MessageSubmitFailed {
		t.Fatalf("expected generic submit failure message, got %v", err)
	}
	if strings.Contains(UserMessage(err), "match") {
		t.Fatalf("user message leaked backend detail: %q", UserMessage(err))
	}

	if _, err := sub.Submit(context.Background(), NewFeedbackSubmission(feedbackFor("visitor@example.com"))); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
}

func TestResumeAuthorized(t *testing.T) {
	c, backend := newTestClient(t, nil)
	token := backend.Issue("visitor@example.com")

	s := c.ResumeAuthorized(context.Background(), "visitor@example.com", token)
	defer s.Close()
	if st := s.State(); st.Phase != PhaseAuthorized {
		t.Fatalf("expected authorized, got %+v", st)
	}
	if n := backend.Calls(testbackend.EndpointValidate); n != 0 {
		t.Fatalf("resume must not validate, got %d calls", n)
	}

	st := s.Evaluate(context.Background(), MagicLinkContext{Email: "visitor@example.com", Token: token})
	if st.Phase != PhaseAuthorized || backend.Calls(testbackend.EndpointValidate) != 0 {
		t.Fatalf("resumed pair should be cached, got %+v", st)
	}

	sub, err := s.Submitter()
	if err != nil {
		t.Fatalf("Submitter: %v", err)
	}
	if _, err := sub.Submit(context.Background(), NewFeedbackSubmission(feedbackFor("visitor@example.com"))); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	again := c.ResumeAuthorized(context.Background(), "visitor@example.com", token)
	defer again.Close()
	if st := again.State(); st.Phase != PhaseRejected || st.Reason != MessageTokenConsumed {
		t.Fatalf("spent pair must resume as rejected, got %+v", st)
	}

	empty := c.ResumeAuthorized(context.Background(), "", "")
	defer empty.Close()
	if st := empty.State(); st.Phase != PhaseAwaitingInput {
		t.Fatalf("expected awaiting_input for empty pair, got %+v", st)
	}
}
