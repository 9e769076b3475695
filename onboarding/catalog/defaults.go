package catalog

import "github.com/m3rciful/onboardbot/onboarding"

var defaultTexts = map[onboarding.MessageID]string{
	onboarding.MsgWelcome: "Hello, welcome! 👋\n\nJoining this group is completely free, and all trades must be done on the exchange account you open.\n\n" +
		"To join the group, register using this link:\n{referral_link}",
	onboarding.MsgReferralQuestion: "Did you register through the referral link above?",
	onboarding.MsgKYCTransferHelp: "Great! To move your existing account under our referral, please follow these steps:\n\n" +
		"1. Log into your account\n2. Open Settings > Referral\n3. Request the referral transfer\n4. Complete the KYC transfer process\n\n" +
		"The screenshots below show where to find it.",
	onboarding.MsgKYCCompletionQuestion: "Have you completed your KYC verification?",
	onboarding.MsgKYCCompletionNo:       "Please complete your KYC verification first, then let me know when you're ready!",
	onboarding.MsgDepositQuestion:       "Have you made a deposit?",
	onboarding.MsgDepositNo:             "Please make a deposit first, then let me know when you're ready!",
	onboarding.MsgSubmissionPrompt:      "Perfect! Please send your exchange UID so our team can verify your account.",
	onboarding.MsgSubmissionNeedHandle: "Please set a Telegram username in your profile settings first, " +
		"then send your UID again. Our team needs it to reach you.",
	onboarding.MsgSubmissionReceived: "Thanks! Your UID {identifier} was forwarded to our team. You'll receive the group link once verified.",
	onboarding.MsgStillWaiting:       "Your details are still under review. We'll message you as soon as a reviewer has checked them.",
	onboarding.MsgReviewRequest: "New user waiting for verification:\nUser ID: {user_id}\nUsername: @{handle}\nName: {name}\n" +
		"Has KYC: {has_kyc}\nHas Deposit: {has_deposit}\nUID: {identifier}",
	onboarding.MsgReviewApprovedUser: "✅ Your verification is complete! Here's your group link:\n{group_link}",
	onboarding.MsgReviewRejectedUser: "❌ Your verification was not approved. Please contact support for more information.",
	onboarding.MsgReviewApprovedAck:  "✅ User {user_id} (@{handle}) approved and group link sent.",
	onboarding.MsgReviewRejectedAck:  "❌ User {user_id} (@{handle}) rejected.",
	onboarding.MsgReviewNotPending:   "User {user_id} is not waiting for review.",
	onboarding.MsgReviewUnauthorized: "You are not authorized to review users.",
	onboarding.MsgReviewNonePending:  "No users are waiting for verification.",
	onboarding.MsgSupportPrompt:      "Please describe your issue and our team will get back to you.",
	onboarding.MsgSupportForward:     "Support request from {user_id} (@{handle}, {name}):\n\n{text}",
	onboarding.MsgSupportThanks:      "Thanks! Your message was forwarded to our team.",
	onboarding.MsgUnsupportedInput:   "Sorry, I didn't understand that. Send /start to begin again.",
	onboarding.MsgRateLimited:        "Too many requests. Please slow down a little.",

	onboarding.LabelReferralYes:      "✅ Yes, I registered",
	onboarding.LabelReferralNo:       "❌ Not yet",
	onboarding.LabelReferralExisting: "🔄 I already have an account",
	onboarding.LabelKYCCompleteYes:   "✅ Yes",
	onboarding.LabelKYCCompleteNo:    "❌ No",
	onboarding.LabelDepositYes:       "✅ Yes",
	onboarding.LabelDepositNo:        "❌ No",
	onboarding.LabelBack:             "⬅️ Back",
	onboarding.LabelApprove:          "✅ Approve",
	onboarding.LabelReject:           "❌ Reject",
}
