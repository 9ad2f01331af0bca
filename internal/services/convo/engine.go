package convo

import (
	"context"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/apperr"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/intent"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/ledger"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

const qrImageSize = 512

type StepMachine interface {
	Current(ctx context.Context, userID int64) (enums.Step, error)
}

type OrderLedger interface {
	StartAd(ctx context.Context, userID int64) (model.Order, bool, error)
	StartVip(ctx context.Context, userID int64) (model.Order, error)
	StartContact(ctx context.Context, userID, adPostID int64) (model.Order, error)
	ApplyGender(ctx context.Context, userID int64, gender enums.Gender) (model.Order, error)
	ConfirmPaymentIntent(ctx context.Context, userID int64) (model.Order, bool, error)
	CancelOpen(ctx context.Context, userID int64) (model.Order, bool, error)
}

// Reply is one outbound message. A non-nil Photo is sent as an image with
// Text as its caption.
type Reply struct {
	Text  string
	Photo []byte
}

// PaymentDetails feed the instruction message and its QR image.
type PaymentDetails struct {
	CardNumber string
	CardHolder string
	QREnabled  bool
}

// Engine resolves the deterministic parts of the dialog: product intents,
// yes/no answers at the payment gate and the gender question. Everything it
// declines to handle falls through to the AI reply path.
type Engine struct {
	steps   StepMachine
	ledger  OrderLedger
	payment PaymentDetails
	logger  *zap.Logger
}

func NewEngine(steps StepMachine, orderLedger OrderLedger, payment PaymentDetails, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{steps: steps, ledger: orderLedger, payment: payment, logger: logger}
}

// Handle answers text the flow understands. handled=false hands the text to
// the AI fallback untouched.
func (e *Engine) Handle(ctx context.Context, userID int64, text string) ([]Reply, bool, error) {
	step, err := e.steps.Current(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("derive step: %w", err)
	}

	switch step {
	case enums.StepAwaitingGender:
		if gender, ok := intent.ParseGender(text); ok {
			return e.applyGender(ctx, userID, gender)
		}

	case enums.StepAwaitingPaymentConfirm:
		switch intent.Classify(text) {
		case intent.Affirmative:
			return e.confirmPayment(ctx, userID)
		case intent.Negative:
			return e.cancelOpen(ctx, userID)
		}

	case enums.StepAwaitingPaymentReceipt:
		if intent.Classify(text) == intent.Negative {
			return e.cancelOpen(ctx, userID)
		}

	case enums.StepIdle:
		switch intent.Classify(text) {
		case intent.Ad:
			return e.startAd(ctx, userID)
		case intent.Vip:
			return e.startVip(ctx, userID)
		case intent.Contact:
			return []Reply{{Text: ui.ContactHowTo}}, true, nil
		}
	}

	return nil, false, nil
}

// StartContactFlow opens a contact purchase from a listing deep link
// (/start contact_<id>).
func (e *Engine) StartContactFlow(ctx context.Context, userID, adPostID int64) ([]Reply, error) {
	order, err := e.ledger.StartContact(ctx, userID, adPostID)
	if err != nil {
		if apperr.IsValidation(err) {
			return []Reply{{Text: ui.ContactHowTo}}, nil
		}
		return nil, err
	}
	return []Reply{{Text: ui.PriceQuote(order.Type, order.Amount)}}, nil
}

func (e *Engine) startAd(ctx context.Context, userID int64) ([]Reply, bool, error) {
	order, _, err := e.ledger.StartAd(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return e.adStageReply(order)
}

// adStageReply answers per the ad order's stage, so repeating "e'lon" is a
// harmless reminder instead of a duplicate order.
func (e *Engine) adStageReply(order model.Order) ([]Reply, bool, error) {
	switch order.Status {
	case enums.OrderStatusAwaitingGender:
		return []Reply{{Text: ui.AskGender}}, true, nil
	case enums.OrderStatusAwaitingContent:
		if order.Amount == 0 {
			return []Reply{{Text: ui.FirstAdFree}}, true, nil
		}
		return []Reply{{Text: ui.ContentInstructions}}, true, nil
	case enums.OrderStatusAwaitingPayment:
		return []Reply{{Text: ui.PriceQuote(order.Type, order.Amount)}}, true, nil
	case enums.OrderStatusAwaitingCheck:
		return []Reply{e.paymentReply(order.Amount)}, true, nil
	case enums.OrderStatusPaymentSubmitted:
		return []Reply{{Text: ui.ReceiptReceived}}, true, nil
	case enums.OrderStatusReadyToPublish:
		return []Reply{{Text: ui.MediaAccepted}}, true, nil
	default:
		return nil, false, nil
	}
}

func (e *Engine) startVip(ctx context.Context, userID int64) ([]Reply, bool, error) {
	order, err := e.ledger.StartVip(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return []Reply{{Text: ui.PriceQuote(order.Type, order.Amount)}}, true, nil
}

func (e *Engine) applyGender(ctx context.Context, userID int64, gender enums.Gender) ([]Reply, bool, error) {
	order, err := e.ledger.ApplyGender(ctx, userID, gender)
	if err != nil {
		if errors.Is(err, ledger.ErrNoOpenOrder) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if order.Status == enums.OrderStatusAwaitingContent {
		return []Reply{{Text: ui.FirstAdFree}}, true, nil
	}
	return []Reply{{Text: ui.PriceQuote(order.Type, order.Amount)}}, true, nil
}

func (e *Engine) confirmPayment(ctx context.Context, userID int64) ([]Reply, bool, error) {
	order, applied, err := e.ledger.ConfirmPaymentIntent(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNoOpenOrder) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if !applied {
		// Repeated "ha" while already waiting for the receipt: repeat the
		// payment details.
		if order.Status == enums.OrderStatusAwaitingCheck {
			return []Reply{e.paymentReply(order.Amount)}, true, nil
		}
		return nil, false, nil
	}

	return []Reply{e.paymentReply(order.Amount)}, true, nil
}

func (e *Engine) cancelOpen(ctx context.Context, userID int64) ([]Reply, bool, error) {
	_, applied, err := e.ledger.CancelOpen(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNoOpenOrder) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !applied {
		return nil, false, nil
	}
	return []Reply{{Text: ui.OrderCancelled}}, true, nil
}

// paymentReply renders the card details, with a QR image when configured.
// The QR is best effort: on encode failure the text goes out alone.
func (e *Engine) paymentReply(amount int64) Reply {
	reply := Reply{Text: ui.PaymentInstructions(amount, e.payment.CardNumber, e.payment.CardHolder)}

	if e.payment.QREnabled && e.payment.CardNumber != "" {
		png, err := qrcode.Encode(e.payment.CardNumber, qrcode.Medium, qrImageSize)
		if err != nil {
			e.logger.Warn("encode payment qr", zap.Error(err))
		} else {
			reply.Photo = png
		}
	}

	return reply
}
