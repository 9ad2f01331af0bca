package model

import (
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

type PaymentTaskPayload struct {
	OrderID          int64           `json:"order_id"`
	OrderType        enums.OrderType `json:"order_type"`
	Amount           int64           `json:"amount"`
	ReceiptFileID    string          `json:"receipt_file_id"`
	ArchiveChatID    int64           `json:"archive_chat_id,omitempty"`
	ArchiveMessageID int64           `json:"archive_message_id,omitempty"`
}

type PublishTaskPayload struct {
	OrderID int64          `json:"order_id"`
	Listing string         `json:"listing"`
	Media   []TaskMediaRef `json:"media"`
}

type TaskMediaRef struct {
	Kind             enums.MediaKind `json:"kind"`
	FileID           string          `json:"file_id"`
	ArchiveChatID    int64           `json:"archive_chat_id,omitempty"`
	ArchiveMessageID int64           `json:"archive_message_id,omitempty"`
}

type EscalationTaskPayload struct {
	Text        string `json:"text"`
	Reason      string `json:"reason,omitempty"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone,omitempty"`
	DeepLink    string `json:"deep_link"`
}
