// Package engine implements the onboarding state machine as a pure function
// from (record, event) to the next state, the fields to persist and the
// actions to dispatch. It performs no I/O and keeps no state between calls.
package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/onboardbot/onboarding"
)

// Config holds the immutable inputs of the engine.
type Config struct {
	Reviewers []int64
}

// Engine evaluates transitions.
type Engine struct {
	reviewers map[int64]struct{}
}

// New builds an engine for the given reviewer set.
func New(cfg Config) *Engine {
	e := &Engine{reviewers: make(map[int64]struct{}, len(cfg.Reviewers))}
	for _, id := range cfg.Reviewers {
		if id != 0 {
			e.reviewers[id] = struct{}{}
		}
	}
	return e
}

// IsReviewer reports whether id may issue admin decisions.
func (e *Engine) IsReviewer(id int64) bool {
	_, ok := e.reviewers[id]
	return ok
}

// Result is the outcome of one transition. Patch must be persisted before
// Actions are dispatched; Review and Support ask the caller to fan out to
// reviewers once the patch is durable.
type Result struct {
	Next     onboarding.State
	Patch    onboarding.Patch
	Actions  []onboarding.Action
	Review   *onboarding.ReviewCase
	Support  *onboarding.SupportRequest
	Fallback bool
}

// Transition computes the effect of ev on rec. The only error it returns is
// onboarding.ErrUnauthorized for decisions from non-reviewers.
func (e *Engine) Transition(rec onboarding.Record, ev onboarding.Event) (Result, error) {
	if !rec.State.Valid() {
		rec.State = onboarding.StateGreeting
	}

	if ev.Kind == onboarding.EventAdminDecision {
		return e.decide(rec, ev)
	}

	var res Result
	if legal(rec.State, ev.Name()) {
		res = e.step(rec, ev)
	} else {
		res = e.reject(rec, ev)
	}

	res.Patch = metaPatch(rec, ev.Meta).Merge(res.Patch)
	if res.Next != rec.State {
		res.Patch.State = onboarding.Ptr(res.Next)
	}

	after := res.Patch.Apply(rec)
	if res.Review != nil {
		c := onboarding.CaseFromRecord(after)
		res.Review = &c
	}
	if res.Support != nil {
		res.Support.UserID = after.UserID
		res.Support.DisplayName = after.DisplayName
		res.Support.Handle = after.Handle
	}
	return res, nil
}

func (e *Engine) step(rec onboarding.Record, ev onboarding.Event) Result {
	uid := rec.UserID
	switch ev.Kind {
	case onboarding.EventCommand:
		switch ev.Command {
		case onboarding.CommandSupport:
			return Result{
				Next:    onboarding.StateSupportRequested,
				Actions: []onboarding.Action{onboarding.SendText(uid, onboarding.MsgSupportPrompt, nil)},
			}
		default:
			return restart(rec, false)
		}

	case onboarding.EventChoice:
		return e.choose(rec, ev.Choice)

	case onboarding.EventText:
		switch rec.State {
		case onboarding.StateIdentifierSubmission:
			return submit(rec, ev)
		case onboarding.StateSupportRequested:
			return support(rec, ev)
		default:
			return restart(rec, false)
		}

	case onboarding.EventNav:
		actions := promptFor(ev.NavTarget, uid)
		if ev.NavTarget == onboarding.StateReferralQuestion {
			actions = append([]onboarding.Action{welcome(uid)}, actions...)
		}
		return Result{Next: ev.NavTarget, Actions: actions}
	}
	return restart(rec, true)
}

func (e *Engine) choose(rec onboarding.Record, id onboarding.ChoiceID) Result {
	uid := rec.UserID
	switch id {
	case onboarding.ChoiceReferralYes:
		return Result{
			Next:    onboarding.StateKYCCompletionQuestion,
			Actions: []onboarding.Action{kycPrompt(uid)},
		}
	case onboarding.ChoiceReferralNo:
		return Result{
			Next:    onboarding.StateReferralQuestion,
			Actions: []onboarding.Action{welcome(uid), referralPrompt(uid)},
		}
	case onboarding.ChoiceReferralExisting:
		// KYC_TRANSFER_HELP only emits instructions and advances on its own.
		next := onboarding.StateKYCTransferHelp
		if legal(next, eventAuto) {
			next, _ = Destination(next, eventAuto)
		}
		return Result{
			Next: next,
			Actions: []onboarding.Action{
				onboarding.SendText(uid, onboarding.MsgKYCTransferHelp, nil),
				onboarding.SendImage(uid, onboarding.ImageTransferStep1),
				onboarding.SendImage(uid, onboarding.ImageTransferStep2),
				kycPrompt(uid),
			},
		}
	case onboarding.ChoiceKYCCompleteYes:
		return Result{
			Next:    onboarding.StateDepositQuestion,
			Patch:   onboarding.Patch{HasReferralKYC: onboarding.Ptr(onboarding.Yes)},
			Actions: []onboarding.Action{depositPrompt(uid)},
		}
	case onboarding.ChoiceKYCCompleteNo:
		return Result{
			Next:  onboarding.StateKYCCompletionQuestion,
			Patch: onboarding.Patch{HasReferralKYC: onboarding.Ptr(onboarding.No)},
			Actions: []onboarding.Action{
				onboarding.SendText(uid, onboarding.MsgKYCCompletionNo, nil),
				kycPrompt(uid),
			},
		}
	case onboarding.ChoiceDepositYes:
		return Result{
			Next:    onboarding.StateIdentifierSubmission,
			Patch:   onboarding.Patch{HasDeposit: onboarding.Ptr(onboarding.Yes)},
			Actions: []onboarding.Action{submissionPrompt(uid)},
		}
	case onboarding.ChoiceDepositNo:
		return Result{
			Next:  onboarding.StateDepositQuestion,
			Patch: onboarding.Patch{HasDeposit: onboarding.Ptr(onboarding.No)},
			Actions: []onboarding.Action{
				onboarding.SendText(uid, onboarding.MsgDepositNo, nil),
				depositPrompt(uid),
			},
		}
	}
	return restart(rec, true)
}

func submit(rec onboarding.Record, ev onboarding.Event) Result {
	uid := rec.UserID
	handle := normalizeHandle(ev.Meta.Handle)
	if handle == "" {
		return Result{
			Next:    rec.State,
			Actions: []onboarding.Action{onboarding.SendText(uid, onboarding.MsgSubmissionNeedHandle, nil)},
		}
	}
	content := strings.TrimSpace(ev.Text)
	if content == "" {
		return Result{Next: rec.State, Actions: []onboarding.Action{submissionPrompt(uid)}}
	}

	var patch onboarding.Patch
	identifier := rec.SubmittedIdentifier
	if identifier == "" {
		identifier = fmt.Sprintf("%s (@%s)", content, handle)
		patch.SubmittedIdentifier = &identifier
	}
	return Result{
		Next:  onboarding.StateWaitingForAdmin,
		Patch: patch,
		Actions: []onboarding.Action{
			onboarding.SendText(uid, onboarding.MsgSubmissionReceived, map[string]string{"identifier": identifier}),
		},
		Review: &onboarding.ReviewCase{},
	}
}

func support(rec onboarding.Record, ev onboarding.Event) Result {
	uid := rec.UserID
	content := strings.TrimSpace(ev.Text)
	if content == "" {
		return Result{
			Next:    rec.State,
			Actions: []onboarding.Action{onboarding.SendText(uid, onboarding.MsgSupportPrompt, nil)},
		}
	}
	return Result{
		Next:    onboarding.StateCompleted,
		Actions: []onboarding.Action{onboarding.SendText(uid, onboarding.MsgSupportThanks, nil)},
		Support: &onboarding.SupportRequest{Text: content},
	}
}

func (e *Engine) decide(rec onboarding.Record, ev onboarding.Event) (Result, error) {
	if !e.IsReviewer(ev.ReviewerID) {
		return Result{}, onboarding.ErrUnauthorized
	}
	args := userArgs(rec)
	if !legal(rec.State, ev.Name()) {
		return Result{
			Next:    rec.State,
			Actions: []onboarding.Action{onboarding.SendText(ev.ReviewerID, onboarding.MsgReviewNotPending, args)},
		}, nil
	}

	userMsg, ackMsg := onboarding.MsgReviewApprovedUser, onboarding.MsgReviewApprovedAck
	if ev.Decision == onboarding.DecisionReject {
		userMsg, ackMsg = onboarding.MsgReviewRejectedUser, onboarding.MsgReviewRejectedAck
	}
	next, _ := Destination(rec.State, ev.Name())
	return Result{
		Next:  next,
		Patch: onboarding.SetState(next),
		Actions: []onboarding.Action{
			onboarding.SendText(rec.UserID, userMsg, nil),
			onboarding.SendText(ev.ReviewerID, ackMsg, args),
		},
	}, nil
}

// reject handles events the table does not allow from the current state.
func (e *Engine) reject(rec onboarding.Record, ev onboarding.Event) Result {
	uid := rec.UserID
	if rec.State == onboarding.StateWaitingForAdmin &&
		(ev.Kind == onboarding.EventText || ev.Kind == onboarding.EventNav || ev.Kind == onboarding.EventChoice) {
		return Result{
			Next:    rec.State,
			Actions: []onboarding.Action{onboarding.SendText(uid, onboarding.MsgStillWaiting, nil)},
		}
	}
	if (ev.Kind == onboarding.EventChoice && ev.Choice.Known()) || ev.Kind == onboarding.EventNav {
		// A stale button from an earlier prompt, or a back button pointing
		// forward: ask the current question again.
		if actions := promptFor(rec.State, uid); len(actions) > 0 {
			return Result{Next: rec.State, Actions: actions}
		}
		return restart(rec, false)
	}
	return restart(rec, true)
}

func restart(rec onboarding.Record, fallback bool) Result {
	return Result{
		Next:     onboarding.StateReferralQuestion,
		Actions:  []onboarding.Action{welcome(rec.UserID), referralPrompt(rec.UserID)},
		Fallback: fallback,
	}
}

// metaPatch refreshes the stored profile from the sender. Events without any
// sender metadata leave it alone; otherwise the handle is last-write-wins, so
// a user who dropped their username no longer has the old one on record.
func metaPatch(rec onboarding.Record, meta onboarding.Meta) onboarding.Patch {
	var p onboarding.Patch
	name := strings.TrimSpace(meta.DisplayName)
	handle := normalizeHandle(meta.Handle)
	if name == "" && handle == "" {
		return p
	}
	if name != "" && name != rec.DisplayName {
		p.DisplayName = &name
	}
	if handle != rec.Handle {
		p.Handle = &handle
	}
	return p
}

func normalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}

func userArgs(rec onboarding.Record) map[string]string {
	return map[string]string{
		"user_id": strconv.FormatInt(rec.UserID, 10),
		"name":    rec.DisplayName,
		"handle":  rec.Handle,
	}
}
