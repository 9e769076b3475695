// Package onboarding holds the domain types shared by the onboarding engine,
// store, flow director and reviewer gateway.
package onboarding

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State is a position in the onboarding conversation.
type State int

const (
	StateGreeting State = iota
	StateReferralQuestion
	StateKYCTransferHelp
	StateKYCCompletionQuestion
	StateDepositQuestion
	StateIdentifierSubmission
	StateWaitingForAdmin
	StateSupportRequested
	StateCompleted
)

var stateNames = [...]string{
	StateGreeting:              "GREETING",
	StateReferralQuestion:      "REFERRAL_QUESTION",
	StateKYCTransferHelp:       "KYC_TRANSFER_HELP",
	StateKYCCompletionQuestion: "KYC_COMPLETION_QUESTION",
	StateDepositQuestion:       "DEPOSIT_QUESTION",
	StateIdentifierSubmission:  "IDENTIFIER_SUBMISSION",
	StateWaitingForAdmin:       "WAITING_FOR_ADMIN",
	StateSupportRequested:      "SUPPORT_REQUESTED",
	StateCompleted:             "COMPLETED",
}

// States returns every enumerated state in declaration order.
func States() []State {
	out := make([]State, 0, len(stateNames))
	for i := range stateNames {
		out = append(out, State(i))
	}
	return out
}

// String returns the persisted name of the state.
func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Valid reports whether s is one of the enumerated states.
func (s State) Valid() bool {
	return s >= StateGreeting && int(s) < len(stateNames)
}

// Terminal reports whether the conversation is parked in s until an
// external actor (reviewer, new command) moves it.
func (s State) Terminal() bool {
	switch s {
	case StateWaitingForAdmin, StateSupportRequested, StateCompleted:
		return true
	}
	return false
}

// ParseState maps a persisted name back to a State.
func ParseState(name string) (State, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return StateGreeting, false
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("onboarding: invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	st, ok := ParseState(string(b))
	if !ok {
		return fmt.Errorf("onboarding: unknown state %q", string(b))
	}
	*s = st
	return nil
}

// TriState is an answer that is unknown until the user responds.
type TriState int8

const (
	Unknown TriState = iota
	Yes
	No
)

// TriStateOf converts a nullable bool.
func TriStateOf(v *bool) TriState {
	if v == nil {
		return Unknown
	}
	if *v {
		return Yes
	}
	return No
}

// Bool converts the answer to a nullable bool.
func (t TriState) Bool() *bool {
	switch t {
	case Yes:
		v := true
		return &v
	case No:
		v := false
		return &v
	}
	return nil
}

// Known reports whether the question has been answered.
func (t TriState) Known() bool { return t == Yes || t == No }

func (t TriState) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	}
	return "unknown"
}

// MarshalJSON encodes the answer as true, false or null.
func (t TriState) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Bool())
}

// UnmarshalJSON accepts true, false or null.
func (t *TriState) UnmarshalJSON(b []byte) error {
	var v *bool
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = TriStateOf(v)
	return nil
}
