package enums

type OrderStatus string

const (
	OrderStatusAwaitingPayment  OrderStatus = "awaiting_payment"
	OrderStatusAwaitingCheck    OrderStatus = "awaiting_check"
	OrderStatusPaymentSubmitted OrderStatus = "payment_submitted"
	OrderStatusAwaitingGender   OrderStatus = "awaiting_gender"
	OrderStatusAwaitingContent  OrderStatus = "awaiting_content"
	OrderStatusReadyToPublish   OrderStatus = "ready_to_publish"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusFailed           OrderStatus = "failed"
)

func OpenOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusAwaitingPayment,
		OrderStatusAwaitingCheck,
		OrderStatusPaymentSubmitted,
		OrderStatusAwaitingGender,
		OrderStatusAwaitingContent,
		OrderStatusReadyToPublish,
	}
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed:
		return true
	default:
		return false
	}
}
