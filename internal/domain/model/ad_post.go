package model

import (
	"time"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

type AdPost struct {
	ID               int64            `json:"id"`
	TaskID           int64            `json:"task_id"`
	UserID           int64            `json:"user_id"`
	Content          string           `json:"content"`
	PublicStatus     enums.PostStatus `json:"public_status"`
	VipStatus        enums.PostStatus `json:"vip_status"`
	ArchiveStatus    enums.PostStatus `json:"archive_status"`
	PublicMessageID  int64            `json:"public_message_id"`
	VipMessageID     int64            `json:"vip_message_id"`
	ArchiveMessageID int64            `json:"archive_message_id"`
	CreatedAt        time.Time        `json:"created_at"`
}

func (p AdPost) AllPosted() bool {
	return p.PublicStatus == enums.PostStatusPosted &&
		p.VipStatus == enums.PostStatusPosted &&
		p.ArchiveStatus == enums.PostStatusPosted
}
