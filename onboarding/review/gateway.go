// Package review fans review cases out to reviewers and turns their
// approve/reject presses back into engine events.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/onboardbot/core/logger"
	"github.com/m3rciful/onboardbot/onboarding"
)

// Handler applies a resolved event, normally the flow director.
type Handler interface {
	Handle(ctx context.Context, ev onboarding.Event) (onboarding.Outcome, error)
}

// Lister finds records by state.
type Lister interface {
	ListByState(ctx context.Context, st onboarding.State) ([]onboarding.Record, error)
}

// ErrNoHandler is returned by ProcessDecision before SetHandler was called.
var ErrNoHandler = errors.New("review: no decision handler configured")

// Gateway is safe for concurrent use once SetHandler has been called.
type Gateway struct {
	reviewers []int64
	allowed   map[int64]struct{}
	outbox    onboarding.Outbox
	lister    Lister
	handler   Handler
}

// New builds a gateway for the given reviewer identities. Zero and duplicate ids are dropped.
func New(reviewers []int64, outbox onboarding.Outbox, lister Lister) *Gateway {
	g := &Gateway{allowed: make(map[int64]struct{}, len(reviewers)), outbox: outbox, lister: lister}
	for _, id := range reviewers {
		if id == 0 {
			continue
		}
		if _, dup := g.allowed[id]; dup {
			continue
		}
		g.allowed[id] = struct{}{}
		g.reviewers = append(g.reviewers, id)
	}
	return g
}

// SetHandler installs the decision handler.
func (g *Gateway) SetHandler(h Handler) { g.handler = h }

// Reviewers returns the configured reviewer ids in configuration order.
func (g *Gateway) Reviewers() []int64 {
	return append([]int64(nil), g.reviewers...)
}

// IsReviewer reports whether id is an authorized reviewer.
func (g *Gateway) IsReviewer(id int64) bool {
	_, ok := g.allowed[id]
	return ok
}

// RequestAction builds the review prompt for one reviewer.
func RequestAction(reviewer int64, c onboarding.ReviewCase) onboarding.Action {
	uid := strconv.FormatInt(c.UserID, 10)
	args := map[string]string{
		"user_id":     uid,
		"name":        c.DisplayName,
		"handle":      c.Handle,
		"has_kyc":     c.HasReferralKYC.String(),
		"has_deposit": c.HasDeposit.String(),
		"identifier":  c.SubmittedIdentifier,
	}
	return onboarding.SendChoicePrompt(reviewer, onboarding.MsgReviewRequest, args,
		onboarding.Option{Label: onboarding.LabelApprove, Key: onboarding.KeyReviewApprove, Payload: uid},
		onboarding.Option{Label: onboarding.LabelReject, Key: onboarding.KeyReviewReject, Payload: uid},
	)
}

// NotifyReviewers sends the case to every reviewer independently. One
// failed delivery never prevents the others.
func (g *Gateway) NotifyReviewers(ctx context.Context, c onboarding.ReviewCase) []onboarding.DispatchResult {
	if len(g.reviewers) == 0 {
		logger.Warn(ctx, "review", "review.notify",
			slog.String("status", "skip"),
			slog.Int64("target_user_id", c.UserID),
			slog.Int("reviewers", 0),
		)
		return nil
	}
	actions := make([]onboarding.Action, 0, len(g.reviewers))
	for _, id := range g.reviewers {
		actions = append(actions, RequestAction(id, c))
	}
	return g.fanOut(ctx, "review.notify", c.UserID, actions)
}

// ForwardSupport relays a support request to every reviewer.
func (g *Gateway) ForwardSupport(ctx context.Context, req onboarding.SupportRequest) []onboarding.DispatchResult {
	if len(g.reviewers) == 0 {
		logger.Warn(ctx, "review", "review.support",
			slog.String("status", "skip"),
			slog.Int64("target_user_id", req.UserID),
			slog.Int("reviewers", 0),
		)
		return nil
	}
	args := map[string]string{
		"user_id": strconv.FormatInt(req.UserID, 10),
		"name":    req.DisplayName,
		"handle":  req.Handle,
		"text":    req.Text,
	}
	actions := make([]onboarding.Action, 0, len(g.reviewers))
	for _, id := range g.reviewers {
		actions = append(actions, onboarding.SendText(id, onboarding.MsgSupportForward, args))
	}
	return g.fanOut(ctx, "review.support", req.UserID, actions)
}

func (g *Gateway) fanOut(ctx context.Context, event string, target int64, actions []onboarding.Action) []onboarding.DispatchResult {
	results := make([]onboarding.DispatchResult, 0, len(actions))
	for _, a := range actions {
		err := g.outbox.Dispatch(ctx, a)
		if err != nil {
			err = &onboarding.DispatchError{Action: a, Err: err}
			logger.Warn(ctx, "review", event,
				slog.String("status", "fail"),
				slog.Int64("reviewer_id", a.To),
				slog.Int64("target_user_id", target),
				slog.String("err", err.Error()),
				slog.String("err_code", "DISPATCH"),
			)
		} else {
			logger.Debug(ctx, "review", event,
				slog.String("status", "ok"),
				slog.Int64("reviewer_id", a.To),
				slog.Int64("target_user_id", target),
			)
		}
		results = append(results, onboarding.DispatchResult{Action: a, Err: err})
	}
	return results
}

// ProcessDecision validates the reviewer and applies the decision to target.
// Non-reviewers get a notice and onboarding.ErrUnauthorized; no record changes.
func (g *Gateway) ProcessDecision(ctx context.Context, reviewerID int64, d onboarding.Decision, target int64) (onboarding.Outcome, error) {
	if !g.IsReviewer(reviewerID) {
		g.refuse(ctx, reviewerID, target)
		return onboarding.Outcome{}, onboarding.ErrUnauthorized
	}
	if g.handler == nil {
		return onboarding.Outcome{}, ErrNoHandler
	}
	out, err := g.handler.Handle(ctx, onboarding.DecisionEvent(reviewerID, d, target))
	if err != nil {
		return out, fmt.Errorf("review: %s user %d: %w", d, target, err)
	}
	logger.Info(ctx, "review", "review.decision",
		slog.String("status", "ok"),
		slog.Int64("reviewer_id", reviewerID),
		slog.Int64("target_user_id", target),
		slog.String("op", d.String()),
		slog.String("from_state", out.From.String()),
		slog.String("to_state", out.To.String()),
	)
	return out, nil
}

// SendPending re-sends every case awaiting review to the requesting reviewer
// and returns how many were found.
func (g *Gateway) SendPending(ctx context.Context, reviewerID int64) (int, error) {
	if !g.IsReviewer(reviewerID) {
		g.refuse(ctx, reviewerID, 0)
		return 0, onboarding.ErrUnauthorized
	}
	records, err := g.lister.ListByState(ctx, onboarding.StateWaitingForAdmin)
	if err != nil {
		return 0, fmt.Errorf("review: list pending: %w", err)
	}
	if len(records) == 0 {
		notice := onboarding.SendText(reviewerID, onboarding.MsgReviewNonePending, nil)
		if err := g.outbox.Dispatch(ctx, notice); err != nil {
			return 0, &onboarding.DispatchError{Action: notice, Err: err}
		}
		return 0, nil
	}
	actions := make([]onboarding.Action, 0, len(records))
	for _, rec := range records {
		actions = append(actions, RequestAction(reviewerID, onboarding.CaseFromRecord(rec)))
	}
	g.fanOut(ctx, "review.pending", 0, actions)
	logger.Info(ctx, "review", "review.pending",
		slog.String("status", "ok"),
		slog.Int64("reviewer_id", reviewerID),
		slog.Int("pending_count", len(records)),
	)
	return len(records), nil
}

func (g *Gateway) refuse(ctx context.Context, reviewerID, target int64) {
	logger.Warn(ctx, "review", "review.decision",
		slog.String("status", "fail"),
		slog.Int64("reviewer_id", reviewerID),
		slog.Int64("target_user_id", target),
		slog.String("err_code", "UNAUTHORIZED"),
	)
	notice := onboarding.SendText(reviewerID, onboarding.MsgReviewUnauthorized, nil)
	if err := g.outbox.Dispatch(ctx, notice); err != nil {
		logger.Warn(ctx, "review", "review.decision",
			slog.String("status", "fail"),
			slog.Int64("reviewer_id", reviewerID),
			slog.String("err", err.Error()),
			slog.String("err_code", "DISPATCH"),
		)
	}
}
