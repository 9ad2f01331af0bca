package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	pgrepo "github.com/hackslab/mening-nomzodim-backend/internal/repo/postgres"
)

type ProfileStore interface {
	Get(ctx context.Context, userID int64) (model.Profile, error)
	SetStep(ctx context.Context, userID int64, step enums.Step) error
	SetStepIf(ctx context.Context, userID int64, next enums.Step, expected ...enums.Step) (bool, error)
}

type OrderStore interface {
	LatestOpen(ctx context.Context, userID int64) (model.Order, error)
}

// Machine resolves the dialog step a user is in. The latest open order is
// the source of truth; the persisted step is a cache that gets repaired when
// it drifts. Escalation is the one persisted step an order can never lift.
type Machine struct {
	profiles ProfileStore
	orders   OrderStore
}

func NewMachine(profiles ProfileStore, orders OrderStore) *Machine {
	return &Machine{profiles: profiles, orders: orders}
}

func (m *Machine) Current(ctx context.Context, userID int64) (enums.Step, error) {
	if m.profiles == nil || m.orders == nil {
		return "", fmt.Errorf("steps machine dependencies are not configured")
	}

	profile, err := m.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrProfileNotFound) {
			return enums.StepIdle, nil
		}
		return "", err
	}

	if profile.CurrentStep == enums.StepEscalatedToAdmin {
		return enums.StepEscalatedToAdmin, nil
	}

	inferred, err := m.inferFromOrder(ctx, userID)
	if err != nil {
		return "", err
	}

	if inferred != enums.StepIdle && inferred != profile.CurrentStep {
		if err := m.profiles.SetStep(ctx, userID, inferred); err != nil {
			return "", err
		}
		return inferred, nil
	}

	if profile.CurrentStep != "" && profile.CurrentStep != enums.StepIdle {
		return profile.CurrentStep, nil
	}

	return inferred, nil
}

// Set writes the step. With expected steps given the write is guarded and
// applied=false means the stored step had already moved on.
func (m *Machine) Set(ctx context.Context, userID int64, next enums.Step, expected ...enums.Step) (bool, error) {
	if m.profiles == nil {
		return false, fmt.Errorf("profile store is nil")
	}

	if len(expected) == 0 {
		if err := m.profiles.SetStep(ctx, userID, next); err != nil {
			return false, err
		}
		return true, nil
	}

	return m.profiles.SetStepIf(ctx, userID, next, expected...)
}

func (m *Machine) inferFromOrder(ctx context.Context, userID int64) (enums.Step, error) {
	order, err := m.orders.LatestOpen(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrOrderNotFound) {
			return enums.StepIdle, nil
		}
		return "", err
	}

	return StepForOrder(order), nil
}

// StepForOrder maps an open order to the step its dialog needs next.
// Payment statuses demand the same step for every order type; the content
// statuses only exist for ad orders.
func StepForOrder(order model.Order) enums.Step {
	switch order.Status {
	case enums.OrderStatusAwaitingPayment:
		return enums.StepAwaitingPaymentConfirm
	case enums.OrderStatusAwaitingCheck:
		return enums.StepAwaitingPaymentReceipt
	case enums.OrderStatusPaymentSubmitted:
		return enums.StepPaymentReceiptSubmitted
	}

	if order.Type == enums.OrderTypeAd {
		switch order.Status {
		case enums.OrderStatusAwaitingGender:
			return enums.StepAwaitingGender
		case enums.OrderStatusAwaitingContent:
			return enums.StepAwaitingCandidateMedia
		case enums.OrderStatusReadyToPublish:
			return enums.StepAwaitingPublishReview
		}
	}

	return enums.StepIdle
}
