package model

import (
	"time"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

type MediaAsset struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user_id"`
	OrderID          *int64          `json:"order_id,omitempty"`
	Kind             enums.MediaKind `json:"kind"`
	FileID           string          `json:"file_id"`
	ArchiveChatID    int64           `json:"archive_chat_id"`
	ArchiveMessageID int64           `json:"archive_message_id"`
	CreatedAt        time.Time       `json:"created_at"`
}
