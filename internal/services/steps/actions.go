package steps

import "github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"

// Conversational actions the assistant may take at each step. The prompt
// builder embeds the list so the model does not offer payment confirmation
// while the dialog is waiting for photos, and so on.
var allowedActions = map[enums.Step][]string{
	enums.StepIdle: {
		"answer_general_question",
		"offer_ad_listing",
		"offer_vip_access",
		"offer_candidate_contact",
	},
	enums.StepAwaitingGender: {
		"ask_listing_gender",
		"answer_general_question",
	},
	enums.StepAwaitingPaymentConfirm: {
		"confirm_payment_intent",
		"cancel_order",
		"answer_general_question",
	},
	enums.StepAwaitingPaymentReceipt: {
		"request_payment_receipt",
		"repeat_payment_details",
		"cancel_order",
	},
	enums.StepPaymentReceiptSubmitted: {
		"ask_to_wait_for_review",
		"answer_general_question",
	},
	enums.StepAwaitingCandidateMedia: {
		"request_candidate_media",
		"explain_media_requirements",
	},
	enums.StepCandidateMediaReady: {
		"ask_to_wait_for_review",
		"answer_general_question",
	},
	enums.StepAwaitingPublishReview: {
		"ask_to_wait_for_review",
		"answer_general_question",
	},
	enums.StepEscalatedToAdmin: {},
}

func AllowedActions(step enums.Step) []string {
	actions, ok := allowedActions[step]
	if !ok {
		return allowedActions[enums.StepIdle]
	}
	return actions
}
