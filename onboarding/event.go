package onboarding

// EventKind is the closed set of inbound event classes.
type EventKind int

const (
	EventInvalid EventKind = iota
	EventCommand
	EventChoice
	EventText
	EventNav
	EventAdminDecision
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventChoice:
		return "choice"
	case EventText:
		return "text"
	case EventNav:
		return "nav"
	case EventAdminDecision:
		return "admin_decision"
	}
	return "invalid"
}

// Command names a conversation-level command.
type Command string

const (
	CommandStart   Command = "start"
	CommandSupport Command = "support"
)

// ChoiceID identifies a button the user pressed.
type ChoiceID string

const (
	ChoiceReferralYes      ChoiceID = "referral_yes"
	ChoiceReferralNo       ChoiceID = "referral_no"
	ChoiceReferralExisting ChoiceID = "referral_existing"
	ChoiceKYCCompleteYes   ChoiceID = "kyc_complete_yes"
	ChoiceKYCCompleteNo    ChoiceID = "kyc_complete_no"
	ChoiceDepositYes       ChoiceID = "deposit_yes"
	ChoiceDepositNo        ChoiceID = "deposit_no"
)

// Choices lists every choice the flow understands.
func Choices() []ChoiceID {
	return []ChoiceID{
		ChoiceReferralYes, ChoiceReferralNo, ChoiceReferralExisting,
		ChoiceKYCCompleteYes, ChoiceKYCCompleteNo,
		ChoiceDepositYes, ChoiceDepositNo,
	}
}

// Known reports whether c is part of the flow.
func (c ChoiceID) Known() bool {
	for _, k := range Choices() {
		if k == c {
			return true
		}
	}
	return false
}

// Decision is a reviewer verdict.
type Decision int

const (
	DecisionApprove Decision = iota + 1
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionReject:
		return "reject"
	}
	return "unknown"
}

// Meta is descriptive user metadata carried by every inbound event.
type Meta struct {
	DisplayName string
	Handle      string
}

// Event is one inbound occurrence after resolution by the flow director.
// For EventAdminDecision, UserID is the reviewed user and ReviewerID the sender.
type Event struct {
	UserID     int64
	Kind       EventKind
	Command    Command
	Choice     ChoiceID
	Text       string
	NavTarget  State
	ReviewerID int64
	Decision   Decision
	Meta       Meta
}

// StartEvent builds a command:start event.
func StartEvent(userID int64, meta Meta) Event {
	return Event{UserID: userID, Kind: EventCommand, Command: CommandStart, Meta: meta}
}

// SupportEvent builds a command:support event.
func SupportEvent(userID int64, meta Meta) Event {
	return Event{UserID: userID, Kind: EventCommand, Command: CommandSupport, Meta: meta}
}

// ChoiceEvent builds a choice:<id> event.
func ChoiceEvent(userID int64, id ChoiceID, meta Meta) Event {
	return Event{UserID: userID, Kind: EventChoice, Choice: id, Meta: meta}
}

// TextEvent builds a text:<content> event.
func TextEvent(userID int64, text string, meta Meta) Event {
	return Event{UserID: userID, Kind: EventText, Text: text, Meta: meta}
}

// NavEvent builds a back-navigation event to an earlier prompt.
func NavEvent(userID int64, target State, meta Meta) Event {
	return Event{UserID: userID, Kind: EventNav, NavTarget: target, Meta: meta}
}

// DecisionEvent builds an admin_decision event for target issued by reviewer.
func DecisionEvent(reviewerID int64, d Decision, target int64) Event {
	return Event{UserID: target, Kind: EventAdminDecision, ReviewerID: reviewerID, Decision: d}
}

// Name renders the abstract event name, e.g. "choice:deposit_yes".
func (e Event) Name() string {
	switch e.Kind {
	case EventCommand:
		return "command:" + string(e.Command)
	case EventChoice:
		return "choice:" + string(e.Choice)
	case EventText:
		return "text"
	case EventNav:
		return "nav:" + e.NavTarget.String()
	case EventAdminDecision:
		return "admin_decision:" + e.Decision.String()
	}
	return "invalid"
}
