package model

import (
	"time"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

type Message struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	Role      enums.MessageRole `json:"role"`
	Content   string            `json:"content"`
	MediaType string            `json:"media_type,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
