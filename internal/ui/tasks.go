package ui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
)

// Button is a transport-agnostic inline button; the transport maps it onto
// the bot API markup.
type Button struct {
	Text string
	Data string
}

func CallbackToken(action enums.TaskAction, taskID int64) string {
	return string(action) + ":" + strconv.FormatInt(taskID, 10)
}

// RenderTask formats an admin task for its review chat. ok=false means the
// task has no renderable content and should be skipped without posting.
func RenderTask(task model.AdminTask) (string, [][]Button, bool) {
	switch task.Type {
	case enums.TaskTypePayment:
		return renderPaymentTask(task)
	case enums.TaskTypePublish:
		return renderPublishTask(task)
	case enums.TaskTypeEscalation:
		return renderEscalationTask(task)
	default:
		return "", nil, false
	}
}

func renderPaymentTask(task model.AdminTask) (string, [][]Button, bool) {
	var payload model.PaymentTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil || payload.OrderID == 0 {
		return "", nil, false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "To'lov cheki, vazifa #%d\n", task.ID)
	fmt.Fprintf(&b, "Buyurtma: #%d (%s)\n", payload.OrderID, payload.OrderType)
	fmt.Fprintf(&b, "Summa: %s so'm\n", FormatAmount(payload.Amount))
	fmt.Fprintf(&b, "Foydalanuvchi: %d", task.UserID)
	if payload.ArchiveMessageID != 0 {
		fmt.Fprintf(&b, "\nArxiv xabari: %d", payload.ArchiveMessageID)
	}

	rows := [][]Button{{
		{Text: "Tasdiqlash", Data: CallbackToken(enums.ActionApprove, task.ID)},
		{Text: "Rad etish", Data: CallbackToken(enums.ActionReject, task.ID)},
	}}
	return b.String(), rows, true
}

func renderPublishTask(task model.AdminTask) (string, [][]Button, bool) {
	var payload model.PublishTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return "", nil, false
	}
	if strings.TrimSpace(payload.Listing) == "" && len(payload.Media) == 0 {
		return "", nil, false
	}

	photos, videos := 0, 0
	for _, m := range payload.Media {
		if m.Kind == enums.MediaKindVideo {
			videos++
		} else {
			photos++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "E'lon nashri, vazifa #%d\n", task.ID)
	fmt.Fprintf(&b, "Buyurtma: #%d, foydalanuvchi: %d\n", payload.OrderID, task.UserID)
	fmt.Fprintf(&b, "Media: %d surat, %d video\n\n", photos, videos)
	b.WriteString(payload.Listing)

	rows := [][]Button{
		{
			{Text: "Media OK", Data: CallbackToken(enums.ActionMediaOK, task.ID)},
			{Text: "Media rad", Data: CallbackToken(enums.ActionMediaNo, task.ID)},
		},
		{
			{Text: "Qayta yuborish", Data: CallbackToken(enums.ActionMediaReset, task.ID)},
			{Text: "Chop etish", Data: CallbackToken(enums.ActionPublish, task.ID)},
		},
	}
	return b.String(), rows, true
}

func renderEscalationTask(task model.AdminTask) (string, [][]Button, bool) {
	var payload model.EscalationTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil || strings.TrimSpace(payload.Text) == "" {
		return "", nil, false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Operator kerak, vazifa #%d\n", task.ID)
	fmt.Fprintf(&b, "Kimdan: %s", payload.DisplayName)
	if payload.Phone != "" {
		fmt.Fprintf(&b, " (%s)", payload.Phone)
	}
	b.WriteString("\n")
	if payload.DeepLink != "" {
		b.WriteString(payload.DeepLink)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(payload.Text)

	rows := [][]Button{{
		{Text: "Suhbatni qaytarish", Data: CallbackToken(enums.ActionEscResume, task.ID)},
		{Text: "Bloklash", Data: CallbackToken(enums.ActionEscBlock, task.ID)},
	}}
	return b.String(), rows, true
}
