package vip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	pgrepo "github.com/hackslab/mening-nomzodim-backend/internal/repo/postgres"
)

type SubscriptionStore interface {
	GetCurrent(ctx context.Context, userID int64) (model.VipSubscription, error)
	UpsertActive(ctx context.Context, userID int64, expiresAt time.Time) (model.VipSubscription, error)
}

// Service owns VIP membership terms. Activation extends an unexpired
// subscription instead of restarting it.
type Service struct {
	subs SubscriptionStore
	term time.Duration
	now  func() time.Time
}

func NewService(subs SubscriptionStore, term time.Duration) *Service {
	return &Service{
		subs: subs,
		term: term,
		now:  time.Now,
	}
}

// Activate grants one term of access. The term is added to the current
// expiry when it is still in the future, to now otherwise.
func (s *Service) Activate(ctx context.Context, userID int64) (model.VipSubscription, error) {
	if s.subs == nil {
		return model.VipSubscription{}, fmt.Errorf("subscription store is nil")
	}

	now := s.now().UTC()
	base := now

	current, err := s.subs.GetCurrent(ctx, userID)
	if err != nil && !errors.Is(err, pgrepo.ErrVipNotFound) {
		return model.VipSubscription{}, err
	}
	if err == nil && current.ActiveAt(now) {
		base = current.ExpiresAt
	}

	return s.subs.UpsertActive(ctx, userID, base.Add(s.term))
}

func (s *Service) IsActive(ctx context.Context, userID int64) (bool, error) {
	if s.subs == nil {
		return false, fmt.Errorf("subscription store is nil")
	}

	current, err := s.subs.GetCurrent(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrVipNotFound) {
			return false, nil
		}
		return false, err
	}

	return current.ActiveAt(s.now().UTC()), nil
}
