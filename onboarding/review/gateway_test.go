package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m3rciful/onboardbot/onboarding"
)

type recordingOutbox struct {
	mu      sync.Mutex
	sent    []onboarding.Action
	failFor map[int64]bool
}

func (o *recordingOutbox) Dispatch(_ context.Context, a onboarding.Action) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failFor[a.To] {
		return errors.New("chat not found")
	}
	o.sent = append(o.sent, a)
	return nil
}

type staticLister struct {
	records []onboarding.Record
	err     error
}

func (l staticLister) ListByState(_ context.Context, st onboarding.State) ([]onboarding.Record, error) {
	var out []onboarding.Record
	for _, r := range l.records {
		if r.State == st {
			out = append(out, r)
		}
	}
	return out, l.err
}

type handlerFunc func(ctx context.Context, ev onboarding.Event) (onboarding.Outcome, error)

func (f handlerFunc) Handle(ctx context.Context, ev onboarding.Event) (onboarding.Outcome, error) {
	return f(ctx, ev)
}

var sampleCase = onboarding.ReviewCase{
	UserID:              55,
	DisplayName:         "Alice",
	Handle:              "alice",
	HasReferralKYC:      onboarding.Yes,
	HasDeposit:          onboarding.Yes,
	SubmittedIdentifier: "UID123 (@alice)",
}

func TestNotifyReviewersFansOutToEveryReviewer(t *testing.T) {
	out := &recordingOutbox{}
	g := New([]int64{1, 2, 2, 0, 3}, out, staticLister{})

	results := g.NotifyReviewers(context.Background(), sampleCase)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, want := range []int64{1, 2, 3} {
		a := out.sent[i]
		if a.To != want || a.Message != onboarding.MsgReviewRequest || a.Kind != onboarding.ActionSendChoicePrompt {
			t.Fatalf("action %d = %+v", i, a)
		}
		if a.Args["identifier"] != "UID123 (@alice)" || a.Args["has_deposit"] != "yes" {
			t.Fatalf("args = %v", a.Args)
		}
		if len(a.Options) != 2 || a.Options[0].Key != onboarding.KeyReviewApprove || a.Options[0].Payload != "55" {
			t.Fatalf("options = %+v", a.Options)
		}
	}
}

func TestNotifyReviewersIsBestEffort(t *testing.T) {
	out := &recordingOutbox{failFor: map[int64]bool{2: true}}
	g := New([]int64{1, 2, 3}, out, staticLister{})

	results := g.NotifyReviewers(context.Background(), sampleCase)
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	var de *onboarding.DispatchError
	if !errors.As(results[1].Err, &de) {
		t.Fatalf("reviewer 2 err = %v, want DispatchError", results[1].Err)
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("other reviewers failed: %v / %v", results[0].Err, results[2].Err)
	}
	if len(out.sent) != 2 {
		t.Fatalf("delivered = %d, want 2", len(out.sent))
	}
}

func TestNotifyWithoutReviewers(t *testing.T) {
	out := &recordingOutbox{}
	g := New(nil, out, staticLister{})
	if res := g.NotifyReviewers(context.Background(), sampleCase); len(res) != 0 {
		t.Fatalf("results = %v", res)
	}
	if res := g.ForwardSupport(context.Background(), onboarding.SupportRequest{UserID: 1, Text: "help"}); len(res) != 0 {
		t.Fatalf("results = %v", res)
	}
}

func TestForwardSupport(t *testing.T) {
	out := &recordingOutbox{}
	g := New([]int64{7, 8}, out, staticLister{})
	g.ForwardSupport(context.Background(), onboarding.SupportRequest{UserID: 9, Handle: "bob", Text: "stuck"})
	if len(out.sent) != 2 {
		t.Fatalf("sent = %d", len(out.sent))
	}
	if out.sent[0].Message != onboarding.MsgSupportForward || out.sent[0].Args["text"] != "stuck" {
		t.Fatalf("forward = %+v", out.sent[0])
	}
}

func TestProcessDecisionUnauthorized(t *testing.T) {
	out := &recordingOutbox{}
	called := false
	g := New([]int64{1}, out, staticLister{})
	g.SetHandler(handlerFunc(func(context.Context, onboarding.Event) (onboarding.Outcome, error) {
		called = true
		return onboarding.Outcome{}, nil
	}))

	_, err := g.ProcessDecision(context.Background(), 999, onboarding.DecisionApprove, 55)
	if !errors.Is(err, onboarding.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Fatal("handler must not run for unauthorized reviewers")
	}
	if len(out.sent) != 1 || out.sent[0].To != 999 || out.sent[0].Message != onboarding.MsgReviewUnauthorized {
		t.Fatalf("notice = %+v", out.sent)
	}
}

func TestProcessDecisionDelegates(t *testing.T) {
	var got onboarding.Event
	g := New([]int64{1}, &recordingOutbox{}, staticLister{})
	g.SetHandler(handlerFunc(func(_ context.Context, ev onboarding.Event) (onboarding.Outcome, error) {
		got = ev
		return onboarding.Outcome{From: onboarding.StateWaitingForAdmin, To: onboarding.StateCompleted}, nil
	}))

	out, err := g.ProcessDecision(context.Background(), 1, onboarding.DecisionReject, 55)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got.Kind != onboarding.EventAdminDecision || got.UserID != 55 || got.ReviewerID != 1 || got.Decision != onboarding.DecisionReject {
		t.Fatalf("event = %+v", got)
	}
	if out.To != onboarding.StateCompleted {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestProcessDecisionWithoutHandler(t *testing.T) {
	g := New([]int64{1}, &recordingOutbox{}, staticLister{})
	if _, err := g.ProcessDecision(context.Background(), 1, onboarding.DecisionApprove, 2); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("err = %v", err)
	}
}

func TestSendPending(t *testing.T) {
	lister := staticLister{records: []onboarding.Record{
		{UserID: 10, State: onboarding.StateWaitingForAdmin, Handle: "a"},
		{UserID: 11, State: onboarding.StateCompleted},
		{UserID: 12, State: onboarding.StateWaitingForAdmin, Handle: "b"},
	}}
	out := &recordingOutbox{}
	g := New([]int64{1}, out, lister)

	n, err := g.SendPending(context.Background(), 1)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if n != 2 || len(out.sent) != 2 {
		t.Fatalf("pending = %d sent = %d", n, len(out.sent))
	}
	if out.sent[1].Options[0].Payload != "12" {
		t.Fatalf("second request payload = %q", out.sent[1].Options[0].Payload)
	}

	empty := &recordingOutbox{}
	g = New([]int64{1}, empty, staticLister{})
	if n, err := g.SendPending(context.Background(), 1); err != nil || n != 0 {
		t.Fatalf("empty pending = %d, %v", n, err)
	}
	if len(empty.sent) != 1 || empty.sent[0].Message != onboarding.MsgReviewNonePending {
		t.Fatalf("empty notice = %+v", empty.sent)
	}

	if _, err := g.SendPending(context.Background(), 2); !errors.Is(err, onboarding.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
}
