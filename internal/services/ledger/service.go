package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/apperr"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	pgrepo "github.com/hackslab/mening-nomzodim-backend/internal/repo/postgres"
)

var ErrNoOpenOrder = errors.New("no open order")

type OrderStore interface {
	Insert(ctx context.Context, order model.Order) (model.Order, error)
	GetByID(ctx context.Context, orderID int64) (model.Order, error)
	LatestOpen(ctx context.Context, userID int64) (model.Order, error)
	OpenAd(ctx context.Context, userID int64) (model.Order, error)
	UpdateStatusIf(ctx context.Context, orderID int64, to enums.OrderStatus, from ...enums.OrderStatus) (bool, error)
	SetAmountAndStatusIf(ctx context.Context, orderID, amount int64, to enums.OrderStatus, from ...enums.OrderStatus) (bool, error)
}

type ProfileStore interface {
	Get(ctx context.Context, userID int64) (model.Profile, error)
	SetGender(ctx context.Context, userID int64, gender enums.Gender) error
	SetStep(ctx context.Context, userID int64, step enums.Step) error
	IncrementAdCount(ctx context.Context, userID int64) error
}

type StepSyncer interface {
	Current(ctx context.Context, userID int64) (enums.Step, error)
}

type Fees struct {
	Ad      int64
	Contact int64
	Vip     int64
}

type Dependencies struct {
	Orders   OrderStore
	Profiles ProfileStore
	Steps    StepSyncer
}

// Service owns order lifecycle: creation with pricing, guarded status
// transitions, and the single-open-ad rule. Every applied write re-syncs the
// step machine so the persisted step follows the order.
type Service struct {
	orders   OrderStore
	profiles ProfileStore
	steps    StepSyncer
	fees     Fees
}

func NewService(deps Dependencies, fees Fees) *Service {
	return &Service{
		orders:   deps.Orders,
		profiles: deps.Profiles,
		steps:    deps.Steps,
		fees:     fees,
	}
}

// AdPrice is the listing fee. The first listing is free for women.
func (s *Service) AdPrice(gender enums.Gender, adCount int) int64 {
	if gender == enums.GenderFemale && adCount == 0 {
		return 0
	}
	return s.fees.Ad
}

func (s *Service) ContactPrice() int64 { return s.fees.Contact }

func (s *Service) VipPrice() int64 { return s.fees.Vip }

// StartAd opens an ad order for the user, or hands back the one already in
// flight. With a known gender the order is priced immediately; otherwise it
// waits in awaiting_gender.
func (s *Service) StartAd(ctx context.Context, userID int64) (model.Order, bool, error) {
	if userID <= 0 {
		return model.Order{}, false, apperr.Validation("user_id", "must be positive")
	}
	if s.orders == nil || s.profiles == nil {
		return model.Order{}, false, fmt.Errorf("ledger dependencies are not configured")
	}

	existing, err := s.orders.OpenAd(ctx, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgrepo.ErrOrderNotFound) {
		return model.Order{}, false, err
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return model.Order{}, false, err
	}

	order := model.Order{
		Ref:    uuid.NewString(),
		Type:   enums.OrderTypeAd,
		UserID: userID,
	}

	if profile.Gender == enums.GenderUnknown {
		order.Status = enums.OrderStatusAwaitingGender
	} else {
		order.Amount = s.AdPrice(profile.Gender, profile.AdCount)
		if order.Amount == 0 {
			order.Status = enums.OrderStatusAwaitingContent
		} else {
			order.Status = enums.OrderStatusAwaitingPayment
		}
	}

	created, err := s.orders.Insert(ctx, order)
	if err != nil {
		return model.Order{}, false, err
	}

	s.syncStep(ctx, userID)

	return created, true, nil
}

func (s *Service) StartVip(ctx context.Context, userID int64) (model.Order, error) {
	if userID <= 0 {
		return model.Order{}, apperr.Validation("user_id", "must be positive")
	}
	if s.orders == nil {
		return model.Order{}, fmt.Errorf("order store is nil")
	}

	created, err := s.orders.Insert(ctx, model.Order{
		Ref:    uuid.NewString(),
		Type:   enums.OrderTypeVip,
		Status: enums.OrderStatusAwaitingPayment,
		UserID: userID,
		Amount: s.fees.Vip,
	})
	if err != nil {
		return model.Order{}, err
	}

	s.syncStep(ctx, userID)

	return created, nil
}

// StartContact opens a contact-purchase order pointing back at the listing
// whose owner the buyer wants to reach.
func (s *Service) StartContact(ctx context.Context, userID, adPostID int64) (model.Order, error) {
	if userID <= 0 {
		return model.Order{}, apperr.Validation("user_id", "must be positive")
	}
	if adPostID <= 0 {
		return model.Order{}, apperr.Validation("ad_post_id", "must be positive")
	}
	if s.orders == nil {
		return model.Order{}, fmt.Errorf("order store is nil")
	}

	created, err := s.orders.Insert(ctx, model.Order{
		Ref:      uuid.NewString(),
		Type:     enums.OrderTypeContact,
		Status:   enums.OrderStatusAwaitingPayment,
		UserID:   userID,
		Amount:   s.fees.Contact,
		AdPostID: &adPostID,
	})
	if err != nil {
		return model.Order{}, err
	}

	s.syncStep(ctx, userID)

	return created, nil
}

// ApplyGender stores the gender answer and prices the ad order that was
// waiting for it: free listing goes straight to content collection, paid one
// to payment confirmation.
func (s *Service) ApplyGender(ctx context.Context, userID int64, gender enums.Gender) (model.Order, error) {
	if gender != enums.GenderFemale && gender != enums.GenderMale {
		return model.Order{}, apperr.Validation("gender", "must be female or male")
	}
	if s.orders == nil || s.profiles == nil {
		return model.Order{}, fmt.Errorf("ledger dependencies are not configured")
	}

	if err := s.profiles.SetGender(ctx, userID, gender); err != nil {
		return model.Order{}, err
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return model.Order{}, err
	}

	order, err := s.orders.OpenAd(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrOrderNotFound) {
			return model.Order{}, ErrNoOpenOrder
		}
		return model.Order{}, err
	}

	amount := s.AdPrice(gender, profile.AdCount)
	to := enums.OrderStatusAwaitingPayment
	if amount == 0 {
		to = enums.OrderStatusAwaitingContent
	}

	if _, err := s.orders.SetAmountAndStatusIf(ctx, order.ID, amount, to, enums.OrderStatusAwaitingGender); err != nil {
		return model.Order{}, err
	}

	s.syncStep(ctx, userID)

	return s.orders.GetByID(ctx, order.ID)
}

// ConfirmPaymentIntent moves the open order from the "will you pay?" stage
// to waiting for the receipt.
func (s *Service) ConfirmPaymentIntent(ctx context.Context, userID int64) (model.Order, bool, error) {
	if s.orders == nil {
		return model.Order{}, false, fmt.Errorf("order store is nil")
	}

	order, err := s.orders.LatestOpen(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrOrderNotFound) {
			return model.Order{}, false, ErrNoOpenOrder
		}
		return model.Order{}, false, err
	}

	applied, err := s.orders.UpdateStatusIf(ctx, order.ID, enums.OrderStatusAwaitingCheck, enums.OrderStatusAwaitingPayment)
	if err != nil {
		return model.Order{}, false, err
	}
	if applied {
		order.Status = enums.OrderStatusAwaitingCheck
		s.syncStep(ctx, userID)
	}

	return order, applied, nil
}

// CancelOpen cancels the open order while payment is still pending and
// resets the dialog to idle.
func (s *Service) CancelOpen(ctx context.Context, userID int64) (model.Order, bool, error) {
	if s.orders == nil || s.profiles == nil {
		return model.Order{}, false, fmt.Errorf("ledger dependencies are not configured")
	}

	order, err := s.orders.LatestOpen(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrOrderNotFound) {
			return model.Order{}, false, ErrNoOpenOrder
		}
		return model.Order{}, false, err
	}

	applied, err := s.orders.UpdateStatusIf(ctx, order.ID, enums.OrderStatusCancelled,
		enums.OrderStatusAwaitingPayment, enums.OrderStatusAwaitingCheck)
	if err != nil {
		return model.Order{}, false, err
	}
	if applied {
		order.Status = enums.OrderStatusCancelled
		if err := s.profiles.SetStep(ctx, userID, enums.StepIdle); err != nil {
			return order, true, err
		}
	}

	return order, applied, nil
}

// Advance is the guarded transition every other component goes through.
// applied=false means a concurrent writer already moved the order.
func (s *Service) Advance(ctx context.Context, orderID int64, to enums.OrderStatus, from ...enums.OrderStatus) (model.Order, bool, error) {
	if s.orders == nil {
		return model.Order{}, false, fmt.Errorf("order store is nil")
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return model.Order{}, false, err
	}

	applied, err := s.orders.UpdateStatusIf(ctx, orderID, to, from...)
	if err != nil {
		return model.Order{}, false, err
	}
	if applied {
		order.Status = to
		s.syncStep(ctx, order.UserID)
	}

	return order, applied, nil
}

// Complete closes the order. The first completed ad bumps the user's listing
// counter, which the price rule reads.
func (s *Service) Complete(ctx context.Context, orderID int64) (model.Order, bool, error) {
	order, applied, err := s.Advance(ctx, orderID, enums.OrderStatusCompleted, enums.OpenOrderStatuses()...)
	if err != nil {
		return model.Order{}, false, err
	}

	if applied && order.Type == enums.OrderTypeAd {
		if err := s.profiles.IncrementAdCount(ctx, order.UserID); err != nil {
			return order, true, err
		}
	}

	return order, applied, nil
}

func (s *Service) LatestOpen(ctx context.Context, userID int64) (model.Order, error) {
	if s.orders == nil {
		return model.Order{}, fmt.Errorf("order store is nil")
	}

	order, err := s.orders.LatestOpen(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrOrderNotFound) {
			return model.Order{}, ErrNoOpenOrder
		}
		return model.Order{}, err
	}

	return order, nil
}

func (s *Service) OpenAd(ctx context.Context, userID int64) (model.Order, error) {
	if s.orders == nil {
		return model.Order{}, fmt.Errorf("order store is nil")
	}

	order, err := s.orders.OpenAd(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrOrderNotFound) {
			return model.Order{}, ErrNoOpenOrder
		}
		return model.Order{}, err
	}

	return order, nil
}

// Step re-sync is best effort: the order row is the source of truth and the
// next resolution repairs any drift.
func (s *Service) syncStep(ctx context.Context, userID int64) {
	if s.steps == nil {
		return
	}
	_, _ = s.steps.Current(ctx, userID)
}
