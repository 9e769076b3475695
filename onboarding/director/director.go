// Package director sequences one inbound event at a time per user: it loads
// the record, asks the engine for the transition, persists the patch and only
// then hands the resulting actions to the outbox and the reviewer gateway.
package director

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/onboardbot/core/logger"
	"github.com/m3rciful/onboardbot/onboarding"
	"github.com/m3rciful/onboardbot/onboarding/engine"
	"github.com/m3rciful/onboardbot/onboarding/keylock"
	"github.com/m3rciful/onboardbot/onboarding/store"
)

// Reviewers is the reviewer gateway as seen by the director.
type Reviewers interface {
	NotifyReviewers(ctx context.Context, c onboarding.ReviewCase) []onboarding.DispatchResult
	ForwardSupport(ctx context.Context, req onboarding.SupportRequest) []onboarding.DispatchResult
	ProcessDecision(ctx context.Context, reviewerID int64, d onboarding.Decision, target int64) (onboarding.Outcome, error)
}

// Config wires the director's collaborators. Reviewers may be nil in tests.
type Config struct {
	Engine    *engine.Engine
	Store     store.Store
	Outbox    onboarding.Outbox
	Reviewers Reviewers
}

// Director is safe for concurrent use; events for the same user are serialized.
type Director struct {
	engine    *engine.Engine
	store     store.Store
	outbox    onboarding.Outbox
	reviewers Reviewers
	locks     *keylock.Map
}

// New constructs a director.
func New(cfg Config) *Director {
	return &Director{
		engine:    cfg.Engine,
		store:     cfg.Store,
		outbox:    cfg.Outbox,
		reviewers: cfg.Reviewers,
		locks:     keylock.New(),
	}
}

// HandleInbound resolves raw input against the user's current state and
// applies it. Reviewer buttons are routed through the gateway so that
// authorization is checked before any record is touched.
func (d *Director) HandleInbound(ctx context.Context, in Inbound) (onboarding.Outcome, error) {
	if in.Kind == InboundCallback && IsReviewKey(in.Key) {
		decision, target, err := ParseDecision(in.Key, in.Payload)
		if err != nil {
			logMalformed(ctx, in.UserID, in.Kind.String()+":"+in.Key)
			return onboarding.Outcome{}, err
		}
		if d.reviewers != nil {
			return d.reviewers.ProcessDecision(ctx, in.UserID, decision, target)
		}
		return d.Handle(ctx, onboarding.DecisionEvent(in.UserID, decision, target))
	}

	unlock := d.locks.Lock(in.UserID)
	defer unlock()

	rec, err := d.load(ctx, in.UserID)
	if err != nil {
		return onboarding.Outcome{}, err
	}
	ev, err := Resolve(in, rec.State)
	if err != nil {
		logMalformed(ctx, in.UserID, in.Kind.String()+":"+in.Command+in.Key)
		if in.Kind != InboundCommand {
			return onboarding.Outcome{From: rec.State, To: rec.State, Record: rec}, err
		}
		// Unknown commands are never content, whatever the state.
		ev = onboarding.StartEvent(in.UserID, in.Meta)
	}
	return d.apply(ctx, rec, ev)
}

// Handle applies an already resolved event. For admin decisions the record
// locked and updated is the reviewed user's.
func (d *Director) Handle(ctx context.Context, ev onboarding.Event) (onboarding.Outcome, error) {
	unlock := d.locks.Lock(ev.UserID)
	defer unlock()

	rec, err := d.load(ctx, ev.UserID)
	if err != nil {
		return onboarding.Outcome{}, err
	}
	return d.apply(ctx, rec, ev)
}

func (d *Director) load(ctx context.Context, userID int64) (onboarding.Record, error) {
	rec, err := d.store.Get(ctx, userID)
	if err != nil {
		logger.Error(ctx, "flow", "flow.load",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		if !onboarding.IsPersistence(err) {
			err = &onboarding.PersistenceError{Op: "get", UserID: userID, Err: err}
		}
		return onboarding.Record{}, err
	}
	return rec, nil
}

func (d *Director) apply(ctx context.Context, rec onboarding.Record, ev onboarding.Event) (onboarding.Outcome, error) {
	start := time.Now()
	out := onboarding.Outcome{From: rec.State, To: rec.State, Record: rec}

	res, err := d.engine.Transition(rec, ev)
	if err != nil {
		if errors.Is(err, onboarding.ErrUnauthorized) {
			logger.Warn(ctx, "review", "review.decision",
				slog.String("status", "fail"),
				slog.Int64("reviewer_id", ev.ReviewerID),
				slog.Int64("target_user_id", ev.UserID),
				slog.String("err_code", "UNAUTHORIZED"),
			)
		}
		return out, err
	}
	if res.Fallback {
		logMalformed(ctx, ev.UserID, ev.Name())
	}

	// Nothing is dispatched unless the patch is durable.
	after := rec
	if !res.Patch.Empty() {
		after, err = d.store.Upsert(ctx, rec.UserID, res.Patch)
		if err != nil {
			if !onboarding.IsPersistence(err) {
				err = &onboarding.PersistenceError{Op: "upsert", UserID: rec.UserID, Err: err}
			}
			logger.Error(ctx, "flow", "flow.transition",
				slog.String("status", "fail"),
				slog.Int64("user_id", rec.UserID),
				slog.String("from_state", rec.State.String()),
				slog.String("to_state", res.Next.String()),
				slog.String("event_kind", ev.Name()),
				slog.String("err", err.Error()),
				slog.String("err_code", "PERSISTENCE"),
			)
			return out, err
		}
	}
	out.To = after.State
	out.Record = after
	out.Actions = res.Actions

	out.Results = d.dispatch(ctx, res.Actions)
	if res.Review != nil && d.reviewers != nil {
		out.Results = append(out.Results, d.reviewers.NotifyReviewers(ctx, *res.Review)...)
	}
	if res.Support != nil && d.reviewers != nil {
		out.Results = append(out.Results, d.reviewers.ForwardSupport(ctx, *res.Support)...)
	}

	logger.Info(ctx, "flow", "flow.transition",
		slog.String("status", "ok"),
		slog.Int64("user_id", rec.UserID),
		slog.String("from_state", out.From.String()),
		slog.String("to_state", out.To.String()),
		slog.String("event_kind", ev.Name()),
		slog.Int("actions", len(out.Results)),
		slog.Int("failed", out.Failed()),
		slog.Duration("duration", logger.Took(start)),
	)
	return out, nil
}

// dispatch hands every action to the outbox. A failed action is logged and
// does not stop the remaining ones.
func (d *Director) dispatch(ctx context.Context, actions []onboarding.Action) []onboarding.DispatchResult {
	results := make([]onboarding.DispatchResult, 0, len(actions))
	for _, a := range actions {
		err := d.outbox.Dispatch(ctx, a)
		if err != nil {
			derr := &onboarding.DispatchError{Action: a, Err: err}
			logger.Warn(ctx, "flow", "flow.dispatch",
				slog.String("status", "fail"),
				slog.Int64("chat_id", a.To),
				slog.String("op", a.Kind.String()),
				slog.String("err", derr.Error()),
				slog.String("err_code", derr.Code()),
			)
			err = derr
		}
		results = append(results, onboarding.DispatchResult{Action: a, Err: err})
	}
	return results
}

func logMalformed(ctx context.Context, userID int64, name string) {
	logger.Warn(ctx, "flow", "flow.malformed",
		slog.String("status", "skip"),
		slog.Int64("user_id", userID),
		slog.String("event_kind", name),
		slog.String("err_code", "MALFORMED_EVENT"),
	)
}
