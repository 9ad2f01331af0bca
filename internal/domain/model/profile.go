package model

import (
	"strings"
	"time"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

type Profile struct {
	UserID      int64        `json:"user_id"`
	Gender      enums.Gender `json:"gender"`
	CurrentStep enums.Step   `json:"current_step"`
	AdCount     int          `json:"ad_count"`
	FirstName   string       `json:"first_name"`
	Username    string       `json:"username"`
	Phone       string       `json:"phone"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (p Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName)
	if name == "" && p.Username != "" {
		name = "@" + p.Username
	}
	return name
}
