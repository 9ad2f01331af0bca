// Package vipwatch reminds expiring VIP members and retires lapsed ones.
package vipwatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/metrics"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

const sweepBatch = 50

// VipSource reads and transitions subscriptions.
type VipSource interface {
	ListDueReminders(ctx context.Context, deadline time.Time, limit int) ([]model.VipSubscription, error)
	MarkReminded(ctx context.Context, subID int64) error
	ListExpired(ctx context.Context, limit int) ([]model.VipSubscription, error)
	MarkExpired(ctx context.Context, subID int64) (bool, error)
}

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
}

type Banner interface {
	BanChatMember(ctx context.Context, chatID, userID int64) error
}

// Job runs one reminder-and-expiry sweep; the app loops it on the
// configured interval. Expiry flips the row first, so a crashed notify
// never revives access.
type Job struct {
	subs           VipSource
	sender         Sender
	banner         Banner
	vipChatID      int64
	reminderBefore time.Duration

	now     func() time.Time
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(subs VipSource, sender Sender, banner Banner, vipChatID int64, reminderBefore time.Duration, m *metrics.Metrics, logger *zap.Logger) *Job {
	if reminderBefore <= 0 {
		reminderBefore = 48 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		subs:           subs,
		sender:         sender,
		banner:         banner,
		vipChatID:      vipChatID,
		reminderBefore: reminderBefore,
		now:            time.Now,
		metrics:        m,
		logger:         logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if err := j.remind(ctx); err != nil {
		return err
	}
	return j.expire(ctx)
}

func (j *Job) remind(ctx context.Context) error {
	deadline := j.now().UTC().Add(j.reminderBefore)

	due, err := j.subs.ListDueReminders(ctx, deadline, sweepBatch)
	if err != nil {
		return fmt.Errorf("list due reminders: %w", err)
	}

	for _, sub := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := j.sender.SendText(ctx, sub.UserID, ui.VipReminder); err != nil {
			// Stays unreminded so the next sweep retries.
			j.logger.Warn("vip reminder failed",
				zap.Int64("user_id", sub.UserID),
				zap.Error(err))
			j.countError()
			continue
		}
		if err := j.subs.MarkReminded(ctx, sub.ID); err != nil {
			return fmt.Errorf("mark subscription %d reminded: %w", sub.ID, err)
		}
		j.logger.Info("vip reminder sent",
			zap.Int64("user_id", sub.UserID),
			zap.Time("expires_at", sub.ExpiresAt))
	}
	return nil
}

func (j *Job) expire(ctx context.Context) error {
	lapsed, err := j.subs.ListExpired(ctx, sweepBatch)
	if err != nil {
		return fmt.Errorf("list expired subscriptions: %w", err)
	}

	for _, sub := range lapsed {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		applied, err := j.subs.MarkExpired(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("mark subscription %d expired: %w", sub.ID, err)
		}
		if !applied {
			continue
		}

		if _, err := j.sender.SendText(ctx, sub.UserID, ui.VipExpired); err != nil {
			j.logger.Warn("vip expiry notice failed",
				zap.Int64("user_id", sub.UserID),
				zap.Error(err))
			j.countError()
		}
		if j.banner != nil && j.vipChatID != 0 {
			if err := j.banner.BanChatMember(ctx, j.vipChatID, sub.UserID); err != nil {
				j.logger.Warn("vip chat removal failed",
					zap.Int64("user_id", sub.UserID),
					zap.Error(err))
				j.countError()
			}
		}
		j.logger.Info("vip subscription expired",
			zap.Int64("user_id", sub.UserID),
			zap.Time("expires_at", sub.ExpiresAt))
	}
	return nil
}

func (j *Job) countError() {
	if j.metrics == nil {
		return
	}
	j.metrics.Errors.WithLabelValues("vipwatch").Inc()
}
