package engine

import "github.com/m3rciful/onboardbot/onboarding"

func welcome(uid int64) onboarding.Action {
	return onboarding.SendText(uid, onboarding.MsgWelcome, nil)
}

func option(label onboarding.MessageID, id onboarding.ChoiceID) onboarding.Option {
	return onboarding.Option{Label: label, Key: string(id)}
}

func back(token string) onboarding.Option {
	return onboarding.Option{Label: onboarding.LabelBack, Key: token}
}

func referralPrompt(uid int64) onboarding.Action {
	return onboarding.SendChoicePrompt(uid, onboarding.MsgReferralQuestion, nil,
		option(onboarding.LabelReferralYes, onboarding.ChoiceReferralYes),
		option(onboarding.LabelReferralNo, onboarding.ChoiceReferralNo),
		option(onboarding.LabelReferralExisting, onboarding.ChoiceReferralExisting),
	)
}

func kycPrompt(uid int64) onboarding.Action {
	return onboarding.SendChoicePrompt(uid, onboarding.MsgKYCCompletionQuestion, nil,
		option(onboarding.LabelKYCCompleteYes, onboarding.ChoiceKYCCompleteYes),
		option(onboarding.LabelKYCCompleteNo, onboarding.ChoiceKYCCompleteNo),
		back(onboarding.NavBackToStart),
	)
}

func depositPrompt(uid int64) onboarding.Action {
	return onboarding.SendChoicePrompt(uid, onboarding.MsgDepositQuestion, nil,
		option(onboarding.LabelDepositYes, onboarding.ChoiceDepositYes),
		option(onboarding.LabelDepositNo, onboarding.ChoiceDepositNo),
		back(onboarding.NavBackToKYC),
	)
}

func submissionPrompt(uid int64) onboarding.Action {
	return onboarding.SendChoicePrompt(uid, onboarding.MsgSubmissionPrompt, nil,
		back(onboarding.NavBackToDeposit),
	)
}

// promptFor returns the question asked in state s, or nil for states that
// ask nothing.
func promptFor(s onboarding.State, uid int64) []onboarding.Action {
	switch s {
	case onboarding.StateReferralQuestion:
		return []onboarding.Action{referralPrompt(uid)}
	case onboarding.StateKYCCompletionQuestion:
		return []onboarding.Action{kycPrompt(uid)}
	case onboarding.StateDepositQuestion:
		return []onboarding.Action{depositPrompt(uid)}
	case onboarding.StateIdentifierSubmission:
		return []onboarding.Action{submissionPrompt(uid)}
	case onboarding.StateSupportRequested:
		return []onboarding.Action{onboarding.SendText(uid, onboarding.MsgSupportPrompt, nil)}
	}
	return nil
}
