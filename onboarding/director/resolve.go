package director

import (
	"strconv"
	"strings"

	"github.com/m3rciful/onboardbot/onboarding"
)

// InboundKind classifies raw transport input.
type InboundKind int

const (
	InboundCommand InboundKind = iota + 1
	InboundCallback
	InboundText
)

func (k InboundKind) String() string {
	switch k {
	case InboundCommand:
		return "command"
	case InboundCallback:
		return "callback"
	case InboundText:
		return "text"
	}
	return "unknown"
}

// Inbound is one raw user input as delivered by the transport.
type Inbound struct {
	UserID  int64
	Kind    InboundKind
	Command string
	Key     string
	Payload string
	Text    string
	Meta    onboarding.Meta
}

// navTargets maps back-button tokens to the prompt they return to.
var navTargets = map[string]onboarding.State{
	onboarding.NavBackToStart:       onboarding.StateReferralQuestion,
	onboarding.NavBackToKYC:         onboarding.StateKYCCompletionQuestion,
	onboarding.NavBackToKYCTransfer: onboarding.StateKYCCompletionQuestion,
	onboarding.NavBackToDeposit:     onboarding.StateDepositQuestion,
}

// NavTarget resolves a back-button token.
func NavTarget(token string) (onboarding.State, bool) {
	st, ok := navTargets[token]
	return st, ok
}

// NavTokens lists every back-button token, for callback registration.
func NavTokens() []string {
	return []string{
		onboarding.NavBackToStart,
		onboarding.NavBackToKYC,
		onboarding.NavBackToKYCTransfer,
		onboarding.NavBackToDeposit,
	}
}

// IsReviewKey reports whether key belongs to a reviewer button.
func IsReviewKey(key string) bool {
	return key == onboarding.KeyReviewApprove || key == onboarding.KeyReviewReject
}

// ParseDecision decodes a reviewer button into its verdict and target user.
func ParseDecision(key, payload string) (onboarding.Decision, int64, error) {
	var d onboarding.Decision
	switch key {
	case onboarding.KeyReviewApprove:
		d = onboarding.DecisionApprove
	case onboarding.KeyReviewReject:
		d = onboarding.DecisionReject
	default:
		return 0, 0, onboarding.ErrMalformedEvent
	}
	target, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || target <= 0 {
		return 0, 0, onboarding.ErrMalformedEvent
	}
	return d, target, nil
}

// Resolve maps in to the abstract event the engine understands. Free text is
// only content while the user is asked for it; elsewhere it restarts the flow.
func Resolve(in Inbound, current onboarding.State) (onboarding.Event, error) {
	switch in.Kind {
	case InboundCommand:
		switch onboarding.Command(strings.TrimPrefix(in.Command, "/")) {
		case onboarding.CommandStart:
			return onboarding.StartEvent(in.UserID, in.Meta), nil
		case onboarding.CommandSupport:
			return onboarding.SupportEvent(in.UserID, in.Meta), nil
		}
		return onboarding.Event{}, onboarding.ErrMalformedEvent

	case InboundCallback:
		key := strings.TrimSpace(in.Key)
		if key == "" {
			return onboarding.Event{}, onboarding.ErrMalformedEvent
		}
		if target, ok := NavTarget(key); ok {
			return onboarding.NavEvent(in.UserID, target, in.Meta), nil
		}
		if IsReviewKey(key) {
			d, target, err := ParseDecision(key, in.Payload)
			if err != nil {
				return onboarding.Event{}, err
			}
			return onboarding.DecisionEvent(in.UserID, d, target), nil
		}
		// Unknown ids pass through; the engine treats them as a restart.
		return onboarding.ChoiceEvent(in.UserID, onboarding.ChoiceID(key), in.Meta), nil

	case InboundText:
		switch current {
		case onboarding.StateIdentifierSubmission,
			onboarding.StateSupportRequested,
			onboarding.StateWaitingForAdmin:
			return onboarding.TextEvent(in.UserID, in.Text, in.Meta), nil
		}
		return onboarding.StartEvent(in.UserID, in.Meta), nil
	}
	return onboarding.Event{}, onboarding.ErrMalformedEvent
}
