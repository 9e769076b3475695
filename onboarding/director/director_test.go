package director

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/m3rciful/onboardbot/onboarding"
	"github.com/m3rciful/onboardbot/onboarding/engine"
	"github.com/m3rciful/onboardbot/onboarding/review"
	"github.com/m3rciful/onboardbot/onboarding/store"
)

const (
	alice     int64 = 100
	reviewerA int64 = 1
	reviewerB int64 = 2
)

type recordingOutbox struct {
	mu   sync.Mutex
	sent []onboarding.Action
	fail bool
}

func (o *recordingOutbox) Dispatch(_ context.Context, a onboarding.Action) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return errors.New("transport down")
	}
	o.sent = append(o.sent, a)
	return nil
}

func (o *recordingOutbox) to(id int64) []onboarding.Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []onboarding.Action
	for _, a := range o.sent {
		if a.To == id {
			out = append(out, a)
		}
	}
	return out
}

type failingStore struct {
	store.Store
}

func (failingStore) Upsert(context.Context, int64, onboarding.Patch) (onboarding.Record, error) {
	return onboarding.Record{}, errors.New("disk full")
}

type fixture struct {
	dir    *Director
	store  *store.Memory
	outbox *recordingOutbox
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reviewers := []int64{reviewerA, reviewerB}
	mem := store.NewMemory(nil)
	out := &recordingOutbox{}
	gw := review.New(reviewers, out, mem)
	d := New(Config{
		Engine:    engine.New(engine.Config{Reviewers: reviewers}),
		Store:     mem,
		Outbox:    out,
		Reviewers: gw,
	})
	gw.SetHandler(d)
	return fixture{dir: d, store: mem, outbox: out}
}

func (f fixture) seed(t *testing.T, p onboarding.Patch) {
	t.Helper()
	if _, err := f.store.Upsert(context.Background(), alice, p); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestStartPersistsBeforeDispatch(t *testing.T) {
	f := newFixture(t)
	out, err := f.dir.HandleInbound(context.Background(), Inbound{
		UserID: alice, Kind: InboundCommand, Command: "start",
		Meta: onboarding.Meta{DisplayName: "Alice", Handle: "alice"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.From != onboarding.StateGreeting || out.To != onboarding.StateReferralQuestion {
		t.Fatalf("outcome %s -> %s", out.From, out.To)
	}
	rec, _ := f.store.Get(context.Background(), alice)
	if rec.State != onboarding.StateReferralQuestion || rec.Handle != "alice" || rec.DisplayName != "Alice" {
		t.Fatalf("stored = %+v", rec)
	}
	if got := f.outbox.to(alice); len(got) != 2 {
		t.Fatalf("user actions = %d, want 2", len(got))
	}
}

func TestPersistenceFailureBlocksDispatch(t *testing.T) {
	mem := store.NewMemory(nil)
	out := &recordingOutbox{}
	d := New(Config{
		Engine: engine.New(engine.Config{}),
		Store:  failingStore{Store: mem},
		Outbox: out,
	})

	res, err := d.HandleInbound(context.Background(), Inbound{UserID: alice, Kind: InboundCommand, Command: "start"})
	if !onboarding.IsPersistence(err) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if res.To != onboarding.StateGreeting {
		t.Fatalf("outcome moved to %s", res.To)
	}
	if len(out.sent) != 0 {
		t.Fatalf("dispatched %d actions after failed write", len(out.sent))
	}
}

func TestDispatchFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.outbox.fail = true
	out, err := f.dir.HandleInbound(context.Background(), Inbound{UserID: alice, Kind: InboundCommand, Command: "start"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Failed() != 2 {
		t.Fatalf("failed = %d, want 2", out.Failed())
	}
	var de *onboarding.DispatchError
	if !errors.As(out.Results[0].Err, &de) {
		t.Fatalf("result err = %v", out.Results[0].Err)
	}
	rec, _ := f.store.Get(context.Background(), alice)
	if rec.State != onboarding.StateReferralQuestion {
		t.Fatalf("transition not committed: %s", rec.State)
	}
}

func TestDepositYesPersistsAnswer(t *testing.T) {
	f := newFixture(t)
	f.seed(t, onboarding.SetState(onboarding.StateDepositQuestion))

	_, err := f.dir.HandleInbound(context.Background(), Inbound{
		UserID: alice, Kind: InboundCallback, Key: string(onboarding.ChoiceDepositYes),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	rec, _ := f.store.Get(context.Background(), alice)
	if rec.State != onboarding.StateIdentifierSubmission || rec.HasDeposit != onboarding.Yes {
		t.Fatalf("stored = %+v", rec)
	}
}

func TestSubmissionNotifiesEveryReviewer(t *testing.T) {
	f := newFixture(t)
	f.seed(t, onboarding.Patch{
		State:          onboarding.Ptr(onboarding.StateIdentifierSubmission),
		HasReferralKYC: onboarding.Ptr(onboarding.Yes),
		HasDeposit:     onboarding.Ptr(onboarding.Yes),
	})

	out, err := f.dir.HandleInbound(context.Background(), Inbound{
		UserID: alice, Kind: InboundText, Text: "UID123",
		Meta: onboarding.Meta{Handle: "alice"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.To != onboarding.StateWaitingForAdmin {
		t.Fatalf("to = %s", out.To)
	}
	if id := out.Record.SubmittedIdentifier; !strings.Contains(id, "UID123") || !strings.Contains(id, "alice") {
		t.Fatalf("identifier = %q", id)
	}
	for _, r := range []int64{reviewerA, reviewerB} {
		got := f.outbox.to(r)
		if len(got) != 1 || got[0].Message != onboarding.MsgReviewRequest {
			t.Fatalf("reviewer %d got %+v", r, got)
		}
	}
}

func TestSubmissionWithoutHandleStays(t *testing.T) {
	f := newFixture(t)
	f.seed(t, onboarding.SetState(onboarding.StateIdentifierSubmission))

	out, err := f.dir.HandleInbound(context.Background(), Inbound{UserID: alice, Kind: InboundText, Text: "UID123"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.To != onboarding.StateIdentifierSubmission || out.Record.SubmittedIdentifier != "" {
		t.Fatalf("outcome = %+v", out)
	}
	if len(f.outbox.to(reviewerA)) != 0 {
		t.Fatal("reviewers notified without a handle")
	}
}

func TestUnknownCommandIsNeverSubmitted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, onboarding.Patch{
		State:  onboarding.Ptr(onboarding.StateIdentifierSubmission),
		Handle: onboarding.Ptr("alice"),
	})

	out, err := f.dir.HandleInbound(context.Background(), Inbound{
		UserID: alice, Kind: InboundCommand, Command: "help",
		Meta: onboarding.Meta{DisplayName: "Alice", Handle: "alice"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.To != onboarding.StateReferralQuestion || out.Record.SubmittedIdentifier != "" {
		t.Fatalf("outcome = %s identifier = %q", out.To, out.Record.SubmittedIdentifier)
	}
	if len(f.outbox.to(reviewerA)) != 0 {
		t.Fatal("reviewers notified for a command")
	}
}

func TestReviewerApproval(t *testing.T) {
	f := newFixture(t)
	f.seed(t, onboarding.Patch{State: onboarding.Ptr(onboarding.StateWaitingForAdmin), Handle: onboarding.Ptr("alice")})

	out, err := f.dir.HandleInbound(context.Background(), Inbound{
		UserID: reviewerA, Kind: InboundCallback, Key: onboarding.KeyReviewApprove, Payload: "100",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.To != onboarding.StateCompleted {
		t.Fatalf("to = %s", out.To)
	}
	user := f.outbox.to(alice)
	if len(user) != 1 || user[0].Message != onboarding.MsgReviewApprovedUser {
		t.Fatalf("user actions = %+v", user)
	}
	ack := f.outbox.to(reviewerA)
	if len(ack) != 1 || ack[0].Message != onboarding.MsgReviewApprovedAck {
		t.Fatalf("reviewer actions = %+v", ack)
	}
}

func TestUnauthorizedDecisionLeavesUserUntouched(t *testing.T) {
	f := newFixture(t)
	f.seed(t, onboarding.SetState(onboarding.StateWaitingForAdmin))

	_, err := f.dir.HandleInbound(context.Background(), Inbound{
		UserID: 555, Kind: InboundCallback, Key: onboarding.KeyReviewReject, Payload: "100",
	})
	if !errors.Is(err, onboarding.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	rec, _ := f.store.Get(context.Background(), alice)
	if rec.State != onboarding.StateWaitingForAdmin {
		t.Fatalf("state = %s", rec.State)
	}
	if len(f.outbox.to(alice)) != 0 {
		t.Fatal("user was messaged after an unauthorized decision")
	}
	if got := f.outbox.to(555); len(got) != 1 || got[0].Message != onboarding.MsgReviewUnauthorized {
		t.Fatalf("notice = %+v", got)
	}
}

func TestMalformedReviewPayload(t *testing.T) {
	f := newFixture(t)
	_, err := f.dir.HandleInbound(context.Background(), Inbound{
		UserID: reviewerA, Kind: InboundCallback, Key: onboarding.KeyReviewApprove, Payload: "abc",
	})
	if !errors.Is(err, onboarding.ErrMalformedEvent) {
		t.Fatalf("err = %v", err)
	}
}

func TestSupportRequestForwarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.dir.HandleInbound(ctx, Inbound{UserID: alice, Kind: InboundCommand, Command: "/support"}); err != nil {
		t.Fatalf("support: %v", err)
	}
	out, err := f.dir.HandleInbound(ctx, Inbound{UserID: alice, Kind: InboundText, Text: "my deposit is stuck"})
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if out.To != onboarding.StateCompleted {
		t.Fatalf("to = %s", out.To)
	}
	for _, r := range []int64{reviewerA, reviewerB} {
		got := f.outbox.to(r)
		if len(got) != 1 || got[0].Args["text"] != "my deposit is stuck" {
			t.Fatalf("reviewer %d got %+v", r, got)
		}
	}
}

func TestBackNavigationKeepsAnswers(t *testing.T) {
	f := newFixture(t)
	f.seed(t, onboarding.Patch{
		State:          onboarding.Ptr(onboarding.StateIdentifierSubmission),
		HasReferralKYC: onboarding.Ptr(onboarding.Yes),
		HasDeposit:     onboarding.Ptr(onboarding.Yes),
	})
	out, err := f.dir.HandleInbound(context.Background(), Inbound{UserID: alice, Kind: InboundCallback, Key: onboarding.NavBackToDeposit})
	if err != nil {
		t.Fatalf("nav: %v", err)
	}
	if out.To != onboarding.StateDepositQuestion || out.Record.HasDeposit != onboarding.Yes || out.Record.HasReferralKYC != onboarding.Yes {
		t.Fatalf("outcome = %+v", out.Record)
	}
}

func TestFullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	meta := onboarding.Meta{DisplayName: "Alice", Handle: "alice"}
	steps := []struct {
		in   Inbound
		want onboarding.State
	}{
		{Inbound{UserID: alice, Kind: InboundCommand, Command: "start", Meta: meta}, onboarding.StateReferralQuestion},
		{Inbound{UserID: alice, Kind: InboundCallback, Key: string(onboarding.ChoiceReferralExisting), Meta: meta}, onboarding.StateKYCCompletionQuestion},
		{Inbound{UserID: alice, Kind: InboundCallback, Key: string(onboarding.ChoiceKYCCompleteNo), Meta: meta}, onboarding.StateKYCCompletionQuestion},
		{Inbound{UserID: alice, Kind: InboundCallback, Key: string(onboarding.ChoiceKYCCompleteYes), Meta: meta}, onboarding.StateDepositQuestion},
		{Inbound{UserID: alice, Kind: InboundCallback, Key: string(onboarding.ChoiceDepositYes), Meta: meta}, onboarding.StateIdentifierSubmission},
		{Inbound{UserID: alice, Kind: InboundText, Text: "UID123", Meta: meta}, onboarding.StateWaitingForAdmin},
		{Inbound{UserID: alice, Kind: InboundText, Text: "hello?", Meta: meta}, onboarding.StateWaitingForAdmin},
		{Inbound{UserID: reviewerB, Kind: InboundCallback, Key: onboarding.KeyReviewApprove, Payload: "100"}, onboarding.StateCompleted},
	}
	for i, s := range steps {
		if _, err := f.dir.HandleInbound(ctx, s.in); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		rec, _ := f.store.Get(ctx, alice)
		if rec.State != s.want {
			t.Fatalf("step %d: state = %s, want %s", i, rec.State, s.want)
		}
	}
	rec, _ := f.store.Get(ctx, alice)
	if rec.HasReferralKYC != onboarding.Yes || rec.HasDeposit != onboarding.Yes {
		t.Fatalf("answers = %s/%s", rec.HasReferralKYC, rec.HasDeposit)
	}
}

func TestConcurrentEventsSameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.dir.HandleInbound(ctx, Inbound{UserID: alice, Kind: InboundCommand, Command: "start"}); err != nil {
				t.Errorf("handle: %v", err)
			}
		}()
	}
	wg.Wait()
	rec, _ := f.store.Get(ctx, alice)
	if rec.State != onboarding.StateReferralQuestion {
		t.Fatalf("state = %s", rec.State)
	}
	if got := len(f.outbox.to(alice)); got != 50 {
		t.Fatalf("actions = %d, want 50", got)
	}
}
