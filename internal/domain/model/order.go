package model

import (
	"time"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

type Order struct {
	ID        int64             `json:"id"`
	Ref       string            `json:"ref"`
	Type      enums.OrderType   `json:"type"`
	Status    enums.OrderStatus `json:"status"`
	UserID    int64             `json:"user_id"`
	Amount    int64             `json:"amount"`
	AdPostID  *int64            `json:"ad_post_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
