package enums

// TaskAction is the verb part of a moderation callback token ("verb:taskID").
type TaskAction string

const (
	ActionApprove    TaskAction = "approve"
	ActionReject     TaskAction = "reject"
	ActionMediaOK    TaskAction = "media_ok"
	ActionMediaNo    TaskAction = "media_no"
	ActionMediaReset TaskAction = "media_reset"
	ActionPublish    TaskAction = "publish"
	ActionEscResume  TaskAction = "esc_resume"
	ActionEscBlock   TaskAction = "esc_block"
)

func ParseTaskAction(raw string) (TaskAction, bool) {
	switch TaskAction(raw) {
	case ActionApprove, ActionReject, ActionMediaOK, ActionMediaNo,
		ActionMediaReset, ActionPublish, ActionEscResume, ActionEscBlock:
		return TaskAction(raw), true
	default:
		return "", false
	}
}
