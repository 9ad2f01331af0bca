package enums

type TaskType string

const (
	TaskTypePayment    TaskType = "payment"
	TaskTypePublish    TaskType = "publish"
	TaskTypeEscalation TaskType = "escalation"
)
