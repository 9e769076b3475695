package onboarding

import "context"

// MessageID keys a text in the message catalog. The core never carries literal text.
type MessageID string

const (
	MsgWelcome               MessageID = "welcome"
	MsgReferralQuestion      MessageID = "referral_question"
	MsgKYCTransferHelp       MessageID = "kyc_transfer_help"
	MsgKYCCompletionQuestion MessageID = "kyc_completion_question"
	MsgKYCCompletionNo       MessageID = "kyc_completion_no"
	MsgDepositQuestion       MessageID = "deposit_question"
	MsgDepositNo             MessageID = "deposit_no"
	MsgSubmissionPrompt      MessageID = "submission_prompt"
	MsgSubmissionNeedHandle  MessageID = "submission_need_handle"
	MsgSubmissionReceived    MessageID = "submission_received"
	MsgStillWaiting          MessageID = "still_waiting"
	MsgReviewRequest         MessageID = "review_request"
	MsgReviewApprovedUser    MessageID = "review_approved_user"
	MsgReviewRejectedUser    MessageID = "review_rejected_user"
	MsgReviewApprovedAck     MessageID = "review_approved_ack"
	MsgReviewRejectedAck     MessageID = "review_rejected_ack"
	MsgReviewNotPending      MessageID = "review_not_pending"
	MsgReviewUnauthorized    MessageID = "review_unauthorized"
	MsgReviewNonePending     MessageID = "review_none_pending"
	MsgSupportPrompt         MessageID = "support_prompt"
	MsgSupportForward        MessageID = "support_forward"
	MsgSupportThanks         MessageID = "support_thanks"
	MsgUnsupportedInput      MessageID = "unsupported_input"
	MsgRateLimited           MessageID = "rate_limited"
	LabelReferralYes         MessageID = "label_referral_yes"
	LabelReferralNo          MessageID = "label_referral_no"
	LabelReferralExisting    MessageID = "label_referral_existing"
	LabelKYCCompleteYes      MessageID = "label_kyc_complete_yes"
	LabelKYCCompleteNo       MessageID = "label_kyc_complete_no"
	LabelDepositYes          MessageID = "label_deposit_yes"
	LabelDepositNo           MessageID = "label_deposit_no"
	LabelBack                MessageID = "label_back"
	LabelApprove             MessageID = "label_approve"
	LabelReject              MessageID = "label_reject"
)

// Image references resolved by the catalog to a URL or file path.
const (
	ImageTransferStep1 = "transfer_step_1"
	ImageTransferStep2 = "transfer_step_2"
)

// Callback keys for the reviewer buttons. The payload is the reviewed user id.
const (
	KeyReviewApprove = "review_approve"
	KeyReviewReject  = "review_reject"
)

// Navigation tokens carried by back buttons.
const (
	NavBackToStart       = "back_to_start"
	NavBackToKYC         = "back_to_kyc"
	NavBackToKYCTransfer = "back_to_kyc_transfer"
	NavBackToDeposit     = "back_to_deposit"
)

// ActionKind is the closed set of outbound actions.
type ActionKind int

const (
	ActionSendText ActionKind = iota + 1
	ActionSendChoicePrompt
	ActionSendImage
)

func (k ActionKind) String() string {
	switch k {
	case ActionSendText:
		return "send_text"
	case ActionSendChoicePrompt:
		return "send_choice_prompt"
	case ActionSendImage:
		return "send_image"
	}
	return "unknown"
}

// Option is one button of a choice prompt. Key is the callback key the
// transport echoes back, Payload an optional argument.
type Option struct {
	Label   MessageID
	Key     string
	Payload string
}

// Action is an outbound effect addressed to one recipient.
type Action struct {
	Kind    ActionKind
	To      int64
	Message MessageID
	Args    map[string]string
	Options []Option
	Image   string
}

// SendText builds a text action.
func SendText(to int64, msg MessageID, args map[string]string) Action {
	return Action{Kind: ActionSendText, To: to, Message: msg, Args: args}
}

// SendChoicePrompt builds a prompt with buttons.
func SendChoicePrompt(to int64, msg MessageID, args map[string]string, opts ...Option) Action {
	return Action{Kind: ActionSendChoicePrompt, To: to, Message: msg, Args: args, Options: opts}
}

// SendImage builds an image action.
func SendImage(to int64, image string) Action {
	return Action{Kind: ActionSendImage, To: to, Image: image}
}

// Outbox hands actions to the transport. Implementations should not block
// on delivery; a returned error means the action was not accepted.
type Outbox interface {
	Dispatch(ctx context.Context, a Action) error
}

// DispatchResult reports the delivery attempt of one action.
type DispatchResult struct {
	Action Action
	Err    error
}

// Outcome summarizes one handled event.
type Outcome struct {
	From    State
	To      State
	Record  Record
	Actions []Action
	Results []DispatchResult
}

// Failed counts results that were not accepted by the transport.
func (o Outcome) Failed() int {
	n := 0
	for _, r := range o.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
