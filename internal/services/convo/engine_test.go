package convo

import (
	"context"
	"strings"
	"testing"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/apperr"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/ledger"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

type stubSteps struct {
	step enums.Step
}

func (s *stubSteps) Current(ctx context.Context, userID int64) (enums.Step, error) {
	return s.step, nil
}

type stubLedger struct {
	adOrder      model.Order
	vipOrder     model.Order
	contactOrder model.Order
	genderOrder  model.Order
	confirmOrder model.Order

	confirmApplied bool
	cancelApplied  bool

	noOpenOrder bool
	contactErr  error

	genders  []enums.Gender
	confirms int
	cancels  int
	adStarts int
}

func (s *stubLedger) StartAd(ctx context.Context, userID int64) (model.Order, bool, error) {
	s.adStarts++
	return s.adOrder, true, nil
}

func (s *stubLedger) StartVip(ctx context.Context, userID int64) (model.Order, error) {
	return s.vipOrder, nil
}

func (s *stubLedger) StartContact(ctx context.Context, userID, adPostID int64) (model.Order, error) {
	if s.contactErr != nil {
		return model.Order{}, s.contactErr
	}
	return s.contactOrder, nil
}

func (s *stubLedger) ApplyGender(ctx context.Context, userID int64, gender enums.Gender) (model.Order, error) {
	if s.noOpenOrder {
		return model.Order{}, ledger.ErrNoOpenOrder
	}
	s.genders = append(s.genders, gender)
	return s.genderOrder, nil
}

func (s *stubLedger) ConfirmPaymentIntent(ctx context.Context, userID int64) (model.Order, bool, error) {
	if s.noOpenOrder {
		return model.Order{}, false, ledger.ErrNoOpenOrder
	}
	s.confirms++
	return s.confirmOrder, s.confirmApplied, nil
}

func (s *stubLedger) CancelOpen(ctx context.Context, userID int64) (model.Order, bool, error) {
	if s.noOpenOrder {
		return model.Order{}, false, ledger.ErrNoOpenOrder
	}
	s.cancels++
	return model.Order{}, s.cancelApplied, nil
}

var testPayment = PaymentDetails{CardNumber: "8600 1234 5678 9012", CardHolder: "OLIM KARIMOV", QREnabled: true}

func newEngine(step enums.Step, l *stubLedger) *Engine {
	return NewEngine(&stubSteps{step: step}, l, testPayment, nil)
}

func TestHandleStartsAdFlowWithGenderQuestion(t *testing.T) {
	l := &stubLedger{adOrder: model.Order{ID: 1, Type: enums.OrderTypeAd, Status: enums.OrderStatusAwaitingGender}}
	e := newEngine(enums.StepIdle, l)

	replies, handled, err := e.Handle(context.Background(), 7, "E'lon joylamoqchiman")
	if err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if l.adStarts != 1 {
		t.Fatalf("ad flow not started: %d", l.adStarts)
	}
	if len(replies) != 1 || replies[0].Text != ui.AskGender {
		t.Fatalf("unexpected replies %+v", replies)
	}
}

func TestHandleQuotesPriceForPaidAd(t *testing.T) {
	l := &stubLedger{adOrder: model.Order{ID: 2, Type: enums.OrderTypeAd, Status: enums.OrderStatusAwaitingPayment, Amount: 50000}}
	e := newEngine(enums.StepIdle, l)

	replies, handled, err := e.Handle(context.Background(), 7, "sovchi kerak")
	if err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if !strings.Contains(replies[0].Text, "50 000") {
		t.Fatalf("quote misses the price: %q", replies[0].Text)
	}
	if !strings.Contains(replies[0].Text, "ha") {
		t.Fatalf("quote must ask for confirmation: %q", replies[0].Text)
	}
}

func TestHandleFreeFirstAd(t *testing.T) {
	l := &stubLedger{adOrder: model.Order{ID: 3, Type: enums.OrderTypeAd, Status: enums.OrderStatusAwaitingContent, Amount: 0}}
	e := newEngine(enums.StepIdle, l)

	replies, handled, err := e.Handle(context.Background(), 7, "e'lon bermoqchiman")
	if err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if replies[0].Text != ui.FirstAdFree {
		t.Fatalf("unexpected reply %q", replies[0].Text)
	}
}

func TestHandleGenderAnswer(t *testing.T) {
	cases := []struct {
		text   string
		gender enums.Gender
		order  model.Order
		want   string
	}{
		{"Ayol kishi uchun", enums.GenderFemale, model.Order{Status: enums.OrderStatusAwaitingContent}, ui.FirstAdFree},
		{"erkak", enums.GenderMale, model.Order{Type: enums.OrderTypeAd, Status: enums.OrderStatusAwaitingPayment, Amount: 50000}, ""},
	}

	for _, tc := range cases {
		l := &stubLedger{genderOrder: tc.order}
		e := newEngine(enums.StepAwaitingGender, l)

		replies, handled, err := e.Handle(context.Background(), 7, tc.text)
		if err != nil || !handled {
			t.Fatalf("Handle(%q): handled=%v err=%v", tc.text, handled, err)
		}
		if len(l.genders) != 1 || l.genders[0] != tc.gender {
			t.Fatalf("gender not applied for %q: %v", tc.text, l.genders)
		}
		if tc.want != "" && replies[0].Text != tc.want {
			t.Fatalf("unexpected reply %q", replies[0].Text)
		}
		if tc.want == "" && !strings.Contains(replies[0].Text, "50 000") {
			t.Fatalf("paid listing must be quoted: %q", replies[0].Text)
		}
	}
}

func TestHandleConfirmSendsInstructionsWithQR(t *testing.T) {
	l := &stubLedger{
		confirmApplied: true,
		confirmOrder:   model.Order{ID: 4, Type: enums.OrderTypeAd, Status: enums.OrderStatusAwaitingPayment, Amount: 50000},
	}
	e := newEngine(enums.StepAwaitingPaymentConfirm, l)

	replies, handled, err := e.Handle(context.Background(), 7, "ha")
	if err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if l.confirms != 1 {
		t.Fatalf("intent not confirmed: %d", l.confirms)
	}
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}
	if !strings.Contains(replies[0].Text, testPayment.CardNumber) {
		t.Fatalf("instructions miss the card number: %q", replies[0].Text)
	}
	if len(replies[0].Photo) == 0 {
		t.Fatalf("expected a QR image with the instructions")
	}
}

func TestHandleConfirmWithoutQRWhenDisabled(t *testing.T) {
	l := &stubLedger{
		confirmApplied: true,
		confirmOrder:   model.Order{ID: 5, Status: enums.OrderStatusAwaitingPayment, Amount: 40000},
	}
	e := NewEngine(&stubSteps{step: enums.StepAwaitingPaymentConfirm}, l,
		PaymentDetails{CardNumber: "8600 1234 5678 9012", QREnabled: false}, nil)

	replies, handled, err := e.Handle(context.Background(), 7, "xo'p")
	if err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if len(replies[0].Photo) != 0 {
		t.Fatalf("QR must be off when disabled")
	}
}

func TestHandleNegativeCancelsOrder(t *testing.T) {
	l := &stubLedger{cancelApplied: true}
	e := newEngine(enums.StepAwaitingPaymentConfirm, l)

	replies, handled, err := e.Handle(context.Background(), 7, "yo'q, kerak emas")
	if err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if l.cancels != 1 {
		t.Fatalf("order not cancelled: %d", l.cancels)
	}
	if replies[0].Text != ui.OrderCancelled {
		t.Fatalf("unexpected reply %q", replies[0].Text)
	}
}

func TestHandleCancelFromReceiptStage(t *testing.T) {
	l := &stubLedger{cancelApplied: true}
	e := newEngine(enums.StepAwaitingPaymentReceipt, l)

	_, handled, err := e.Handle(context.Background(), 7, "bekor qilaman")
	if err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if l.cancels != 1 {
		t.Fatalf("order not cancelled from receipt stage")
	}
}

func TestHandleVipQuote(t *testing.T) {
	l := &stubLedger{vipOrder: model.Order{ID: 6, Type: enums.OrderTypeVip, Status: enums.OrderStatusAwaitingPayment, Amount: 40000}}
	e := newEngine(enums.StepIdle, l)

	replies, handled, err := e.Handle(context.Background(), 7, "VIP kanalga qo'shilmoqchiman")
	if err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if !strings.Contains(replies[0].Text, "VIP obuna") || !strings.Contains(replies[0].Text, "40 000") {
		t.Fatalf("unexpected vip quote %q", replies[0].Text)
	}
}

func TestHandleContactIntentExplainsDeepLink(t *testing.T) {
	e := newEngine(enums.StepIdle, &stubLedger{})

	replies, handled, err := e.Handle(context.Background(), 7, "nomzodning raqamini olsam bo'ladimi")
	if err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if replies[0].Text != ui.ContactHowTo {
		t.Fatalf("unexpected reply %q", replies[0].Text)
	}
}

func TestHandleFallsThroughToAI(t *testing.T) {
	e := newEngine(enums.StepIdle, &stubLedger{})

	replies, handled, err := e.Handle(context.Background(), 7, "assalomu alaykum, yaxshimisiz")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if handled || replies != nil {
		t.Fatalf("small talk must fall through to AI, got handled=%v %v", handled, replies)
	}
}

func TestHandleGenderStepWithoutOrderFallsThrough(t *testing.T) {
	e := newEngine(enums.StepAwaitingGender, &stubLedger{noOpenOrder: true})

	_, handled, err := e.Handle(context.Background(), 7, "ayol")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if handled {
		t.Fatalf("gender answer without an order must fall through")
	}
}

func TestStartContactFlow(t *testing.T) {
	l := &stubLedger{contactOrder: model.Order{ID: 7, Type: enums.OrderTypeContact, Status: enums.OrderStatusAwaitingPayment, Amount: 30000}}
	e := newEngine(enums.StepIdle, l)

	replies, err := e.StartContactFlow(context.Background(), 7, 42)
	if err != nil {
		t.Fatalf("StartContactFlow: %v", err)
	}
	if !strings.Contains(replies[0].Text, "Nomzod raqami") || !strings.Contains(replies[0].Text, "30 000") {
		t.Fatalf("unexpected quote %q", replies[0].Text)
	}

	l.contactErr = apperr.Validation("ad_post_id", "must be positive")
	replies, err = e.StartContactFlow(context.Background(), 7, 0)
	if err != nil {
		t.Fatalf("StartContactFlow with bad reference: %v", err)
	}
	if replies[0].Text != ui.ContactHowTo {
		t.Fatalf("bad reference must explain the deep link, got %q", replies[0].Text)
	}
}
