package model

import (
	"encoding/json"
	"time"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

type AdminTask struct {
	ID              int64            `json:"id"`
	Type            enums.TaskType   `json:"type"`
	Status          enums.TaskStatus `json:"status"`
	Payload         json.RawMessage  `json:"payload"`
	UserID          int64            `json:"user_id"`
	SessionID       string           `json:"session_id"`
	PostedChatID    int64            `json:"posted_chat_id"`
	PostedMessageID int64            `json:"posted_message_id"`
	DecidedBy       int64            `json:"decided_by"`
	DecidedAt       *time.Time       `json:"decided_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
