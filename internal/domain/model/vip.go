package model

import (
	"time"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

type VipSubscription struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Status         enums.VipStatus `json:"status"`
	ExpiresAt      time.Time       `json:"expires_at"`
	ReminderSentAt *time.Time      `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (s VipSubscription) ActiveAt(now time.Time) bool {
	return s.Status == enums.VipStatusActive && s.ExpiresAt.After(now)
}
