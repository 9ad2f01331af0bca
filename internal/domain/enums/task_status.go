package enums

type TaskStatus string

const (
	TaskStatusPending       TaskStatus = "pending"
	TaskStatusPosted        TaskStatus = "posted"
	TaskStatusSkipped       TaskStatus = "skipped"
	TaskStatusApproved      TaskStatus = "approved"
	TaskStatusRejected      TaskStatus = "rejected"
	TaskStatusMediaApproved TaskStatus = "media_approved"
	TaskStatusMediaRejected TaskStatus = "media_rejected"
	TaskStatusMediaReset    TaskStatus = "media_reset"
	TaskStatusPublished     TaskStatus = "published"
	TaskStatusResumed       TaskStatus = "resumed"
	TaskStatusBlocked       TaskStatus = "blocked"
)
