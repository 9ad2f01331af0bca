package vipwatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

type stubSubs struct {
	due      []model.VipSubscription
	expired  []model.VipSubscription
	reminded []int64
	retired  []int64
	lostRace bool

	gotDeadline time.Time
}

func (s *stubSubs) ListDueReminders(_ context.Context, deadline time.Time, _ int) ([]model.VipSubscription, error) {
	s.gotDeadline = deadline
	return s.due, nil
}

func (s *stubSubs) MarkReminded(_ context.Context, subID int64) error {
	s.reminded = append(s.reminded, subID)
	return nil
}

func (s *stubSubs) ListExpired(_ context.Context, _ int) ([]model.VipSubscription, error) {
	return s.expired, nil
}

func (s *stubSubs) MarkExpired(_ context.Context, subID int64) (bool, error) {
	if s.lostRace {
		return false, nil
	}
	s.retired = append(s.retired, subID)
	return true, nil
}

type sentText struct {
	chatID int64
	text   string
}

type stubSender struct {
	sent    []sentText
	failFor map[int64]error
}

func (s *stubSender) SendText(_ context.Context, chatID int64, text string) (int64, error) {
	if err := s.failFor[chatID]; err != nil {
		return 0, err
	}
	s.sent = append(s.sent, sentText{chatID: chatID, text: text})
	return int64(len(s.sent)), nil
}

type banRec struct {
	chatID int64
	userID int64
}

type stubBanner struct {
	banned []banRec
	err    error
}

func (s *stubBanner) BanChatMember(_ context.Context, chatID, userID int64) error {
	if s.err != nil {
		return s.err
	}
	s.banned = append(s.banned, banRec{chatID: chatID, userID: userID})
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
}

func TestRunRemindsExpiringMembers(t *testing.T) {
	subs := &stubSubs{due: []model.VipSubscription{
		{ID: 1, UserID: 100, Status: enums.VipStatusActive, ExpiresAt: fixedNow().Add(30 * time.Hour)},
		{ID: 2, UserID: 200, Status: enums.VipStatusActive, ExpiresAt: fixedNow().Add(40 * time.Hour)},
	}}
	sender := &stubSender{}
	job := New(subs, sender, nil, 0, 48*time.Hour, nil, zap.NewNop())
	job.now = fixedNow

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if want := fixedNow().Add(48 * time.Hour); !subs.gotDeadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", subs.gotDeadline, want)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent %d reminders, want 2", len(sender.sent))
	}
	if sender.sent[0].chatID != 100 || sender.sent[0].text != ui.VipReminder {
		t.Fatalf("unexpected first reminder: %+v", sender.sent[0])
	}
	if len(subs.reminded) != 2 {
		t.Fatalf("marked %d reminded, want 2", len(subs.reminded))
	}
}

func TestRunKeepsReminderWhenSendFails(t *testing.T) {
	subs := &stubSubs{due: []model.VipSubscription{
		{ID: 1, UserID: 100, ExpiresAt: fixedNow().Add(30 * time.Hour)},
		{ID: 2, UserID: 200, ExpiresAt: fixedNow().Add(40 * time.Hour)},
	}}
	sender := &stubSender{failFor: map[int64]error{100: errors.New("blocked by user")}}
	job := New(subs, sender, nil, 0, 48*time.Hour, nil, zap.NewNop())
	job.now = fixedNow

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("one undeliverable reminder must not abort the sweep: %v", err)
	}
	if len(subs.reminded) != 1 || subs.reminded[0] != 2 {
		t.Fatalf("reminded = %v, want [2]", subs.reminded)
	}
}

func TestRunExpiresAndRemovesFromVipChat(t *testing.T) {
	subs := &stubSubs{expired: []model.VipSubscription{
		{ID: 3, UserID: 300, Status: enums.VipStatusActive, ExpiresAt: fixedNow().Add(-time.Hour)},
	}}
	sender := &stubSender{}
	banner := &stubBanner{}
	job := New(subs, sender, banner, -500, 48*time.Hour, nil, zap.NewNop())
	job.now = fixedNow

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(subs.retired) != 1 || subs.retired[0] != 3 {
		t.Fatalf("retired = %v, want [3]", subs.retired)
	}
	if len(sender.sent) != 1 || sender.sent[0].text != ui.VipExpired {
		t.Fatalf("expiry notice = %+v, want one VipExpired", sender.sent)
	}
	if len(banner.banned) != 1 || banner.banned[0] != (banRec{chatID: -500, userID: 300}) {
		t.Fatalf("ban = %+v, want user 300 removed from chat -500", banner.banned)
	}
}

func TestRunSkipsNotificationWhenRaceLost(t *testing.T) {
	subs := &stubSubs{
		expired:  []model.VipSubscription{{ID: 3, UserID: 300, ExpiresAt: fixedNow().Add(-time.Hour)}},
		lostRace: true,
	}
	sender := &stubSender{}
	job := New(subs, sender, nil, 0, 48*time.Hour, nil, zap.NewNop())
	job.now = fixedNow

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("lost race must not notify, sent %+v", sender.sent)
	}
}

func TestRunExpiryNoticeFailureDoesNotUndoExpiry(t *testing.T) {
	subs := &stubSubs{expired: []model.VipSubscription{
		{ID: 3, UserID: 300, ExpiresAt: fixedNow().Add(-time.Hour)},
	}}
	sender := &stubSender{failFor: map[int64]error{300: errors.New("blocked by user")}}
	banner := &stubBanner{}
	job := New(subs, sender, banner, -500, 48*time.Hour, nil, zap.NewNop())
	job.now = fixedNow

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(subs.retired) != 1 {
		t.Fatalf("subscription must expire even when the notice bounces")
	}
	if len(banner.banned) != 1 {
		t.Fatalf("member must still be removed from the vip chat")
	}
}
