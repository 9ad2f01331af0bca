package enums

type Step string

const (
	StepIdle                    Step = "idle"
	StepAwaitingGender          Step = "awaiting_gender"
	StepAwaitingPaymentConfirm  Step = "awaiting_payment_confirmation"
	StepAwaitingPaymentReceipt  Step = "awaiting_payment_receipt"
	StepPaymentReceiptSubmitted Step = "payment_receipt_submitted"
	StepAwaitingCandidateMedia  Step = "awaiting_candidate_media"
	StepCandidateMediaReady     Step = "candidate_media_ready"
	StepAwaitingPublishReview   Step = "awaiting_publish_review"
	StepEscalatedToAdmin        Step = "escalated_to_admin"
)
