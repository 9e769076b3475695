package engine

import (
	"slices"

	"github.com/looplab/fsm"

	"github.com/m3rciful/onboardbot/onboarding"
)

// eventAuto is the internal event fired when a transient state advances on its own.
const eventAuto = "auto"

type edge struct {
	event string
	src   []onboarding.State
	dst   onboarding.State
}

func except(skip ...onboarding.State) []onboarding.State {
	var out []onboarding.State
next:
	for _, s := range onboarding.States() {
		for _, k := range skip {
			if s == k {
				continue next
			}
		}
		out = append(out, s)
	}
	return out
}

func only(s ...onboarding.State) []onboarding.State { return s }

// flowOrder lists the prompt states in the order a user walks through them.
var flowOrder = []onboarding.State{
	onboarding.StateReferralQuestion,
	onboarding.StateKYCTransferHelp,
	onboarding.StateKYCCompletionQuestion,
	onboarding.StateDepositQuestion,
	onboarding.StateIdentifierSubmission,
}

// atOrAfter returns target and every flow state that follows it, the states
// a back button to target may be pressed from.
func atOrAfter(target onboarding.State) []onboarding.State {
	i := slices.Index(flowOrder, target)
	if i < 0 {
		return nil
	}
	return flowOrder[i:]
}

func choice(id onboarding.ChoiceID) string { return "choice:" + string(id) }

func nav(target onboarding.State) string { return "nav:" + target.String() }

// table is the authoritative list of legal transitions. Events absent for a
// state are rejected before any branch logic runs.
var table = []edge{
	{"command:start", except(), onboarding.StateReferralQuestion},
	{"command:support", except(), onboarding.StateSupportRequested},

	{choice(onboarding.ChoiceReferralYes), only(onboarding.StateReferralQuestion), onboarding.StateKYCCompletionQuestion},
	{choice(onboarding.ChoiceReferralNo), only(onboarding.StateReferralQuestion), onboarding.StateReferralQuestion},
	{choice(onboarding.ChoiceReferralExisting), only(onboarding.StateReferralQuestion), onboarding.StateKYCTransferHelp},
	{eventAuto, only(onboarding.StateKYCTransferHelp), onboarding.StateKYCCompletionQuestion},

	{choice(onboarding.ChoiceKYCCompleteYes), only(onboarding.StateKYCCompletionQuestion), onboarding.StateDepositQuestion},
	{choice(onboarding.ChoiceKYCCompleteNo), only(onboarding.StateKYCCompletionQuestion), onboarding.StateKYCCompletionQuestion},

	{choice(onboarding.ChoiceDepositYes), only(onboarding.StateDepositQuestion), onboarding.StateIdentifierSubmission},
	{choice(onboarding.ChoiceDepositNo), only(onboarding.StateDepositQuestion), onboarding.StateDepositQuestion},

	{"text", only(onboarding.StateIdentifierSubmission), onboarding.StateWaitingForAdmin},
	{"text", only(onboarding.StateSupportRequested), onboarding.StateCompleted},
	{"text", except(onboarding.StateWaitingForAdmin, onboarding.StateIdentifierSubmission, onboarding.StateSupportRequested), onboarding.StateReferralQuestion},

	{"admin_decision:approve", only(onboarding.StateWaitingForAdmin), onboarding.StateCompleted},
	{"admin_decision:reject", only(onboarding.StateWaitingForAdmin), onboarding.StateCompleted},

	{nav(onboarding.StateReferralQuestion), atOrAfter(onboarding.StateReferralQuestion), onboarding.StateReferralQuestion},
	{nav(onboarding.StateKYCCompletionQuestion), atOrAfter(onboarding.StateKYCCompletionQuestion), onboarding.StateKYCCompletionQuestion},
	{nav(onboarding.StateDepositQuestion), atOrAfter(onboarding.StateDepositQuestion), onboarding.StateDepositQuestion},
}

// legalEvents is the set of events each state accepts, computed once from
// the table.
var legalEvents = buildLegal(buildEvents())

func buildEvents() fsm.Events {
	events := make(fsm.Events, 0, len(table))
	for _, e := range table {
		src := make([]string, 0, len(e.src))
		for _, s := range e.src {
			src = append(src, s.String())
		}
		events = append(events, fsm.EventDesc{Name: e.event, Src: src, Dst: e.dst.String()})
	}
	return events
}

func buildLegal(events fsm.Events) map[onboarding.State]map[string]bool {
	out := make(map[onboarding.State]map[string]bool, len(onboarding.States()))
	for _, st := range onboarding.States() {
		machine := fsm.NewFSM(st.String(), events, nil)
		set := make(map[string]bool)
		for _, name := range machine.AvailableTransitions() {
			set[name] = true
		}
		out[st] = set
	}
	return out
}

// legal reports whether event may fire from the given state.
func legal(from onboarding.State, event string) bool {
	return legalEvents[from][event]
}

// Destination looks up the nominal target of event from the given state.
// Branches that gate on event content (a missing handle, empty text) may stay put instead.
func Destination(from onboarding.State, event string) (onboarding.State, bool) {
	for _, e := range table {
		if e.event != event {
			continue
		}
		for _, s := range e.src {
			if s == from {
				return e.dst, true
			}
		}
	}
	return from, false
}
