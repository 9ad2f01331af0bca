package reply

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/convo"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/escalation"
	"github.com/hackslab/mening-nomzodim-backend/internal/state"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

type manualJob struct {
	fn      func()
	stopped bool
}

// manualScheduler runs reply timers by hand instead of on the clock.
type manualScheduler struct {
	mu   sync.Mutex
	jobs []*manualJob
}

func (s *manualScheduler) Schedule(_ time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &manualJob{fn: fn}
	s.jobs = append(s.jobs, job)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if job.stopped {
			return false
		}
		job.stopped = true
		return true
	}
}

// runLast fires the newest still-armed timer, the one a real clock would
// reach after the quiet period.
func (s *manualScheduler) runLast(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	var job *manualJob
	for i := len(s.jobs) - 1; i >= 0; i-- {
		if !s.jobs[i].stopped {
			job = s.jobs[i]
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		t.Fatalf("no armed reply timer")
	}
	job.fn()
}

// runIndex fires a timer even if it was stopped, imitating the race where it
// goes off before Stop lands.
func (s *manualScheduler) runIndex(i int) { s.jobs[i].fn() }

type stubSteps struct{ step enums.Step }

func (s *stubSteps) Current(context.Context, int64) (enums.Step, error) { return s.step, nil }

type stubEngine struct {
	replies []convo.Reply
	handled bool
	err     error
	texts   []string
}

func (e *stubEngine) Handle(_ context.Context, _ int64, text string) ([]convo.Reply, bool, error) {
	e.texts = append(e.texts, text)
	return e.replies, e.handled, e.err
}

type escalated struct {
	userID  int64
	message string
	reason  string
}

type stubEscalations struct {
	keyword   string
	sentinel  string
	escalated []escalated
}

func (s *stubEscalations) TriggeredByText(text string) bool {
	return s.keyword != "" && strings.Contains(strings.ToLower(text), s.keyword)
}

func (s *stubEscalations) IsSentinel(reply string) bool {
	return s.sentinel != "" && strings.TrimSpace(reply) == s.sentinel
}

func (s *stubEscalations) Escalate(_ context.Context, userID int64, message, reason string) error {
	s.escalated = append(s.escalated, escalated{userID: userID, message: message, reason: reason})
	return nil
}

type stubPrompts struct{ system string }

func (s *stubPrompts) System(enums.Step) string { return s.system }

type stubMessages struct {
	history  []model.Message
	inserted []model.Message
}

func (s *stubMessages) Insert(_ context.Context, msg model.Message) (model.Message, error) {
	msg.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, msg)
	return msg, nil
}

func (s *stubMessages) ListRecent(_ context.Context, _ int64, limit int) ([]model.Message, error) {
	if len(s.history) > limit {
		return s.history[len(s.history)-limit:], nil
	}
	return s.history, nil
}

type aiCall struct {
	system string
	turns  []model.Message
}

type stubAI struct {
	answer string
	err    error
	calls  []aiCall
}

func (s *stubAI) Generate(_ context.Context, system string, turns []model.Message) (string, error) {
	s.calls = append(s.calls, aiCall{system: system, turns: turns})
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type stubSender struct {
	sent   []string
	typing int
	onSend func()
}

func (s *stubSender) SendText(_ context.Context, _ int64, text string) (int64, error) {
	s.sent = append(s.sent, text)
	if s.onSend != nil {
		s.onSend()
	}
	return int64(len(s.sent)), nil
}

func (s *stubSender) SendPhotoBytes(_ context.Context, _ int64, _ []byte, caption string) (int64, string, error) {
	s.sent = append(s.sent, "photo:"+caption)
	return int64(len(s.sent)), "file-1", nil
}

func (s *stubSender) SendTyping(context.Context, int64) error {
	s.typing++
	return nil
}

type fixture struct {
	svc       *Service
	state     *state.Memory
	scheduler *manualScheduler
	engine    *stubEngine
	esc       *stubEscalations
	ai        *stubAI
	sender    *stubSender
	messages  *stubMessages
	sleeps    []time.Duration
}

func newFixture() *fixture {
	f := &fixture{
		state:     state.NewMemory(),
		scheduler: &manualScheduler{},
		engine:    &stubEngine{},
		esc:       &stubEscalations{keyword: "firib", sentinel: "[OPERATOR]"},
		ai:        &stubAI{answer: "Albatta, hozir tushuntirib beraman."},
		sender:    &stubSender{},
		messages:  &stubMessages{},
	}
	f.svc = NewService(Dependencies{
		State:       f.state,
		Steps:       &stubSteps{step: enums.StepIdle},
		Engine:      f.engine,
		Escalations: f.esc,
		Prompts:     &stubPrompts{system: "sovchi operator prompt"},
		Messages:    f.messages,
		AI:          f.ai,
		Sender:      f.sender,
		Scheduler:   f.scheduler,
	}, Config{Delay: 6 * time.Second, HistoryLimit: 30, ApologizeOnError: true}, nil, zap.NewNop())
	f.svc.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	return f
}

func TestBurstCoalescesIntoOneAICall(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.svc.Enqueue(ctx, 7, "Salom"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.svc.Enqueue(ctx, 7, "yordam kerak"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !f.scheduler.jobs[0].stopped {
		t.Fatalf("first timer was not stopped by the second fragment")
	}

	f.scheduler.runLast(t)

	if len(f.ai.calls) != 1 {
		t.Fatalf("ai calls = %d, want 1", len(f.ai.calls))
	}
	turns := f.ai.calls[0].turns
	last := turns[len(turns)-1]
	if last.Role != enums.MessageRoleUser {
		t.Fatalf("last turn role = %s", last.Role)
	}
	if last.Content != "Salom\nyordam kerak" {
		t.Fatalf("combined turn = %q", last.Content)
	}
	if f.ai.calls[0].system != "sovchi operator prompt" {
		t.Fatalf("system prompt = %q", f.ai.calls[0].system)
	}
	if len(f.sender.sent) == 0 {
		t.Fatalf("no reply was sent")
	}
	if fragments, _, _ := f.state.PendingSnapshot(ctx, 7); len(fragments) != 0 {
		t.Fatalf("buffer not cleared: %q", fragments)
	}
}

func TestStaleTimerDoesNotAnswer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.svc.Enqueue(ctx, 7, "Birinchi savol"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.svc.Enqueue(ctx, 7, "ikkinchi savol"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	f.scheduler.runIndex(0)

	if len(f.ai.calls) != 0 {
		t.Fatalf("stale timer reached the model")
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("stale timer sent %q", f.sender.sent)
	}
	if fragments, _, _ := f.state.PendingSnapshot(ctx, 7); len(fragments) != 2 {
		t.Fatalf("stale timer touched the buffer: %q", fragments)
	}

	f.scheduler.runLast(t)

	if len(f.ai.calls) != 1 {
		t.Fatalf("ai calls = %d, want 1", len(f.ai.calls))
	}
	turns := f.ai.calls[0].turns
	if got := turns[len(turns)-1].Content; got != "Birinchi savol\nikkinchi savol" {
		t.Fatalf("combined turn = %q", got)
	}
}

func TestMidFlightMessageStopsRemainingFragments(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ai.answer = "Birinchi javob shu yerda turibdi.\nIkkinchi javob ham tayyor edi."
	f.sender.onSend = func() {
		if len(f.sender.sent) == 1 {
			if _, err := f.state.AppendPending(ctx, 7, "yana bir savol"); err != nil {
				t.Fatalf("append mid-flight: %v", err)
			}
		}
	}

	if err := f.svc.Enqueue(ctx, 7, "Narxlar qanday?"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.sender.sent) != 1 {
		t.Fatalf("sent %d fragments, want 1: %q", len(f.sender.sent), f.sender.sent)
	}
	if f.sender.sent[0] != "Birinchi javob shu yerda turibdi." {
		t.Fatalf("first fragment = %q", f.sender.sent[0])
	}
}

func TestEscalationKeywordSkipsAI(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.svc.Enqueue(ctx, 7, "Bu firib bo'lsa kerak"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.ai.calls) != 0 {
		t.Fatalf("keyword text reached the model")
	}
	if len(f.esc.escalated) != 1 {
		t.Fatalf("escalations = %d, want 1", len(f.esc.escalated))
	}
	got := f.esc.escalated[0]
	if got.reason != escalation.ReasonKeyword {
		t.Fatalf("reason = %q", got.reason)
	}
	if got.message != "Bu firib bo'lsa kerak" {
		t.Fatalf("escalated message = %q", got.message)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != ui.EscalationAck {
		t.Fatalf("sent = %q, want the escalation ack", f.sender.sent)
	}
	if fragments, _, _ := f.state.PendingSnapshot(ctx, 7); len(fragments) != 0 {
		t.Fatalf("buffer not cleared after escalation: %q", fragments)
	}
}

func TestSentinelAnswerEscalatesInsteadOfSending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ai.answer = " [OPERATOR]\n"

	if err := f.svc.Enqueue(ctx, 7, "Holatim juda chigal, maslahat kerak"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.esc.escalated) != 1 {
		t.Fatalf("escalations = %d, want 1", len(f.esc.escalated))
	}
	if got := f.esc.escalated[0].reason; got != escalation.ReasonSentinel {
		t.Fatalf("reason = %q", got)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != ui.EscalationAck {
		t.Fatalf("sentinel answer leaked to the user: %q", f.sender.sent)
	}
}

func TestEngineHandledTextSkipsAI(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.engine.replies = []convo.Reply{{Text: ui.AskGender}}
	f.engine.handled = true

	if err := f.svc.Enqueue(ctx, 7, "e'lon joylamoqchiman"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.ai.calls) != 0 {
		t.Fatalf("handled text reached the model")
	}
	if len(f.engine.texts) != 1 || f.engine.texts[0] != "e'lon joylamoqchiman" {
		t.Fatalf("engine saw %q", f.engine.texts)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != ui.AskGender {
		t.Fatalf("sent = %q", f.sender.sent)
	}
	if fragments, _, _ := f.state.PendingSnapshot(ctx, 7); len(fragments) != 0 {
		t.Fatalf("buffer not cleared: %q", fragments)
	}
}

func TestPausedDialogKeepsBuffer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.state.SetPaused(ctx, 7, true); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if err := f.svc.Enqueue(ctx, 7, "Operator qachon javob beradi?"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.ai.calls) != 0 || len(f.sender.sent) != 0 {
		t.Fatalf("paused dialog produced output")
	}
	if fragments, _, _ := f.state.PendingSnapshot(ctx, 7); len(fragments) != 1 {
		t.Fatalf("buffer = %q, want the fragment kept", fragments)
	}
}

func TestBlockedUserGetsNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.state.SetBlocked(ctx, 7, true); err != nil {
		t.Fatalf("block: %v", err)
	}

	if err := f.svc.Enqueue(ctx, 7, "Salom"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.ai.calls) != 0 || len(f.sender.sent) != 0 {
		t.Fatalf("blocked user got a reply")
	}
}

func TestAIFailureApologizes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ai.err = errors.New("model unavailable")

	if err := f.svc.Enqueue(ctx, 7, "Salom"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.sender.sent) != 1 || f.sender.sent[0] != ui.GenericApology {
		t.Fatalf("sent = %q, want the apology", f.sender.sent)
	}
	if fragments, _, _ := f.state.PendingSnapshot(ctx, 7); len(fragments) != 0 {
		t.Fatalf("buffer not cleared after apology: %q", fragments)
	}
}

func TestAIFailureStaysQuietWhenApologyDisabled(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.svc.apologize = false
	f.ai.err = errors.New("model unavailable")

	if err := f.svc.Enqueue(ctx, 7, "Salom"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.sender.sent) != 0 {
		t.Fatalf("sent = %q, want silence", f.sender.sent)
	}
	if fragments, _, _ := f.state.PendingSnapshot(ctx, 7); len(fragments) != 1 {
		t.Fatalf("buffer = %q, want the fragment kept for the next turn", fragments)
	}
}

func TestEmptyAnswerLeavesBufferForNextTurn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ai.answer = "   "

	if err := f.svc.Enqueue(ctx, 7, "Salom"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.sender.sent) != 0 {
		t.Fatalf("sent = %q, want nothing", f.sender.sent)
	}
	if fragments, _, _ := f.state.PendingSnapshot(ctx, 7); len(fragments) != 1 {
		t.Fatalf("buffer = %q, want the fragment kept", fragments)
	}
}

func TestHistoryTailReplacedByCombinedTurn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.messages.history = []model.Message{
		{Role: enums.MessageRoleUser, Content: "Assalomu alaykum"},
		{Role: enums.MessageRoleAssistant, Content: "Va alaykum assalom!"},
		{Role: enums.MessageRoleUser, Content: "Narx qancha?"},
		{Role: enums.MessageRoleUser, Content: "VIP haqida ham ayting"},
	}

	if err := f.svc.Enqueue(ctx, 7, "Narx qancha?"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.svc.Enqueue(ctx, 7, "VIP haqida ham ayting"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.ai.calls) != 1 {
		t.Fatalf("ai calls = %d, want 1", len(f.ai.calls))
	}
	turns := f.ai.calls[0].turns
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want history head plus combined: %+v", len(turns), turns)
	}
	if turns[0].Content != "Assalomu alaykum" || turns[1].Role != enums.MessageRoleAssistant {
		t.Fatalf("history head reordered: %+v", turns[:2])
	}
	if turns[2].Content != "Narx qancha?\nVIP haqida ham ayting" {
		t.Fatalf("combined turn = %q", turns[2].Content)
	}
}

func TestFragmentsArePacedLikeTyping(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ai.answer = "Birinchi javob shu yerda turibdi.\nIkkinchi javob ham tayyor bo'ldi."

	if err := f.svc.Enqueue(ctx, 7, "Qanday xizmatlar bor?"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	f.scheduler.runLast(t)

	if len(f.sender.sent) != 2 {
		t.Fatalf("sent = %q, want 2 fragments", f.sender.sent)
	}
	if f.sender.typing != 2 {
		t.Fatalf("typing actions = %d, want 2", f.sender.typing)
	}
	if len(f.sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(f.sleeps))
	}
	for i, d := range f.sleeps {
		if d < typingMinDelay || d > typingMaxDelay {
			t.Fatalf("sleep %d = %s, want within [%s, %s]", i, d, typingMinDelay, typingMaxDelay)
		}
	}
	if len(f.messages.inserted) != 2 {
		t.Fatalf("persisted %d assistant messages, want 2", len(f.messages.inserted))
	}
	for _, msg := range f.messages.inserted {
		if msg.Role != enums.MessageRoleAssistant {
			t.Fatalf("persisted role = %s", msg.Role)
		}
	}
}
