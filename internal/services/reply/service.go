package reply

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/metrics"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/convo"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/escalation"
	"github.com/hackslab/mening-nomzodim-backend/internal/state"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

const (
	// fireTimeout bounds one reply cycle: AI call plus the paced sends.
	fireTimeout = 90 * time.Second

	typingMinDelay = 1500 * time.Millisecond
	typingMaxDelay = 3 * time.Second
	typingCPS      = 30
)

type StepSource interface {
	Current(ctx context.Context, userID int64) (enums.Step, error)
}

type Conversation interface {
	Handle(ctx context.Context, userID int64, text string) ([]convo.Reply, bool, error)
}

type Escalations interface {
	TriggeredByText(text string) bool
	IsSentinel(reply string) bool
	Escalate(ctx context.Context, userID int64, message, reason string) error
}

type PromptSource interface {
	System(step enums.Step) string
}

type MessageStore interface {
	Insert(ctx context.Context, msg model.Message) (model.Message, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]model.Message, error)
}

// AI produces the assistant turn for a dialog. turns end with the combined
// user message being answered.
type AI interface {
	Generate(ctx context.Context, system string, turns []model.Message) (string, error)
}

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	SendPhotoBytes(ctx context.Context, chatID int64, data []byte, caption string) (messageID int64, fileID string, err error)
	SendTyping(ctx context.Context, chatID int64) error
}

// Scheduler arms the quiet-period timer. The returned stop reports whether
// the call prevented the function from running.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (stop func() bool)
}

type timerScheduler struct{}

// NewTimerScheduler schedules on real time.AfterFunc timers.
func NewTimerScheduler() Scheduler { return timerScheduler{} }

func (timerScheduler) Schedule(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

type Dependencies struct {
	State       state.Store
	Steps       StepSource
	Engine      Conversation
	Escalations Escalations
	Prompts     PromptSource
	Messages    MessageStore
	AI          AI
	Sender      Sender
	Scheduler   Scheduler
}

type Config struct {
	Delay            time.Duration
	HistoryLimit     int
	ApologizeOnError bool
}

// Service answers buffered user text after a quiet period. Every inbound
// fragment re-arms the timer, so rapid-fire messages collapse into one
// AI call, and the state token invalidates replies the user typed past.
type Service struct {
	state       state.Store
	steps       StepSource
	engine      Conversation
	escalations Escalations
	prompts     PromptSource
	messages    MessageStore
	ai          AI
	sender      Sender
	scheduler   Scheduler

	delay        time.Duration
	historyLimit int
	apologize    bool

	sleep   func(time.Duration)
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	timers map[int64]func() bool
}

func NewService(deps Dependencies, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 6 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 30
	}
	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = NewTimerScheduler()
	}
	return &Service{
		state:        deps.State,
		steps:        deps.Steps,
		engine:       deps.Engine,
		escalations:  deps.Escalations,
		prompts:      deps.Prompts,
		messages:     deps.Messages,
		ai:           deps.AI,
		sender:       deps.Sender,
		scheduler:    scheduler,
		delay:        cfg.Delay,
		historyLimit: cfg.HistoryLimit,
		apologize:    cfg.ApologizeOnError,
		sleep:        time.Sleep,
		metrics:      m,
		logger:       logger,
		timers:       make(map[int64]func() bool),
	}
}

// Enqueue buffers one text fragment and restarts the user's quiet-period
// timer. The reply fires only after the user stays silent for the full delay.
func (s *Service) Enqueue(ctx context.Context, userID int64, text string) error {
	token, err := s.state.AppendPending(ctx, userID, text)
	if err != nil {
		return fmt.Errorf("buffer fragment: %w", err)
	}
	s.rearm(userID, token)
	return nil
}

// Shutdown stops every armed timer. Buffered fragments stay in the store and
// get answered after the user's next message.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, stop := range s.timers {
		stop()
		delete(s.timers, userID)
	}
}

func (s *Service) rearm(userID, token int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.timers[userID]; ok {
		stop()
	}
	s.timers[userID] = s.scheduler.Schedule(s.delay, func() {
		s.fire(userID, token)
	})
}

func (s *Service) fire(userID, token int64) {
	s.mu.Lock()
	delete(s.timers, userID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	if err := s.respond(ctx, userID, token); err != nil {
		s.logger.Error("reply cycle failed", zap.Int64("user_id", userID), zap.Error(err))
		s.countError()
	}
}

func (s *Service) respond(ctx context.Context, userID, token int64) error {
	if blocked, err := s.state.IsBlocked(ctx, userID); err != nil {
		return fmt.Errorf("check block flag: %w", err)
	} else if blocked {
		return nil
	}
	if paused, err := s.state.IsPaused(ctx, userID); err != nil {
		return fmt.Errorf("check pause flag: %w", err)
	} else if paused {
		// An operator owns the dialog. The buffer stays until Resume drops it.
		return nil
	}

	fragments, current, err := s.state.PendingSnapshot(ctx, userID)
	if err != nil {
		return fmt.Errorf("snapshot buffer: %w", err)
	}
	if current != token || len(fragments) == 0 {
		// A newer fragment re-armed the timer; its firing owns the buffer.
		return nil
	}
	combined := strings.Join(fragments, "\n")

	if s.escalations.TriggeredByText(combined) {
		return s.escalate(ctx, userID, token, combined, escalation.ReasonKeyword)
	}

	replies, handled, err := s.engine.Handle(ctx, userID, combined)
	if err != nil {
		return fmt.Errorf("conversation flow: %w", err)
	}
	if handled {
		return s.deliver(ctx, userID, token, replies)
	}

	answer, err := s.generate(ctx, userID, combined)
	if err != nil {
		s.logger.Warn("ai generation failed", zap.Int64("user_id", userID), zap.Error(err))
		if !s.apologize {
			return nil
		}
		return s.deliver(ctx, userID, token, []convo.Reply{{Text: ui.GenericApology}})
	}
	if s.escalations.IsSentinel(answer) {
		return s.escalate(ctx, userID, token, combined, escalation.ReasonSentinel)
	}
	if strings.TrimSpace(answer) == "" {
		s.logger.Warn("ai returned empty answer", zap.Int64("user_id", userID))
		return nil
	}

	parts := SplitReply(answer)
	replies = make([]convo.Reply, 0, len(parts))
	for _, part := range parts {
		replies = append(replies, convo.Reply{Text: part})
	}
	return s.deliver(ctx, userID, token, replies)
}

func (s *Service) generate(ctx context.Context, userID int64, combined string) (string, error) {
	step, err := s.steps.Current(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve step: %w", err)
	}
	history, err := s.messages.ListRecent(ctx, userID, s.historyLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	start := time.Now()
	answer, err := s.ai.Generate(ctx, s.prompts.System(step), buildTurns(history, combined))
	s.observeAI(time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

// buildTurns assembles the dialog for the model. The trailing user messages
// in history are the same fragments already joined into combined, so they are
// replaced by the single combined turn.
func buildTurns(history []model.Message, combined string) []model.Message {
	end := len(history)
	for end > 0 && history[end-1].Role == enums.MessageRoleUser {
		end--
	}
	turns := make([]model.Message, 0, end+1)
	turns = append(turns, history[:end]...)
	turns = append(turns, model.Message{Role: enums.MessageRoleUser, Content: combined})
	return turns
}

func (s *Service) escalate(ctx context.Context, userID, token int64, message, reason string) error {
	if err := s.escalations.Escalate(ctx, userID, message, reason); err != nil {
		return fmt.Errorf("escalate dialog: %w", err)
	}
	s.countEscalation(reason)
	if _, err := s.state.ClearPendingIf(ctx, userID, token); err != nil {
		s.logger.Warn("clear buffer after escalation", zap.Int64("user_id", userID), zap.Error(err))
	}
	if _, err := s.sender.SendText(ctx, userID, ui.EscalationAck); err != nil {
		return fmt.Errorf("send escalation ack: %w", err)
	}
	s.persistAssistant(ctx, userID, ui.EscalationAck)
	s.countOutgoing("text")
	return nil
}

// deliver clears the buffer and walks the fragments out one by one. Clearing
// first keeps the commit point single: losing the clear means a newer
// fragment arrived and this reply is stale.
func (s *Service) deliver(ctx context.Context, userID, token int64, replies []convo.Reply) error {
	if len(replies) == 0 {
		return nil
	}
	won, err := s.state.ClearPendingIf(ctx, userID, token)
	if err != nil {
		return fmt.Errorf("clear buffer: %w", err)
	}
	if !won {
		return nil
	}

	for i, reply := range replies {
		if i > 0 {
			// The user may have typed past the reply while it was being
			// paced out. Stop mid-flight instead of talking over them.
			current, err := s.state.CurrentToken(ctx, userID)
			if err != nil {
				return fmt.Errorf("recheck token: %w", err)
			}
			if current != token {
				return nil
			}
		}
		_ = s.sender.SendTyping(ctx, userID)
		s.sleep(typingDelay(reply.Text))
		if err := s.sendOne(ctx, userID, reply); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) sendOne(ctx context.Context, userID int64, reply convo.Reply) error {
	if len(reply.Photo) > 0 {
		if _, _, err := s.sender.SendPhotoBytes(ctx, userID, reply.Photo, reply.Text); err != nil {
			return fmt.Errorf("send photo reply: %w", err)
		}
		s.persistAssistant(ctx, userID, reply.Text)
		s.countOutgoing("photo")
		return nil
	}
	if _, err := s.sender.SendText(ctx, userID, reply.Text); err != nil {
		return fmt.Errorf("send text reply: %w", err)
	}
	s.persistAssistant(ctx, userID, reply.Text)
	s.countOutgoing("text")
	return nil
}

func (s *Service) persistAssistant(ctx context.Context, userID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if _, err := s.messages.Insert(ctx, model.Message{
		UserID:  userID,
		Role:    enums.MessageRoleAssistant,
		Content: text,
	}); err != nil {
		s.logger.Warn("persist assistant message", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// typingDelay paces a fragment at roughly human typing speed with jitter,
// clamped so short answers still pause and long ones do not stall the dialog.
func typingDelay(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * time.Second / typingCPS
	d += time.Duration(rand.Int63n(int64(400 * time.Millisecond)))
	if d < typingMinDelay {
		return typingMinDelay
	}
	if d > typingMaxDelay {
		return typingMaxDelay
	}
	return d
}

func (s *Service) observeAI(elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.AIRequests.WithLabelValues(status).Inc()
	s.metrics.AILatency.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (s *Service) countEscalation(trigger string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Escalations.WithLabelValues(trigger).Inc()
}

func (s *Service) countOutgoing(kind string) {
	if s.metrics == nil {
		return
	}
	s.metrics.OutgoingMessages.WithLabelValues(kind).Inc()
}

func (s *Service) countError() {
	if s.metrics == nil {
		return
	}
	s.metrics.Errors.WithLabelValues("reply").Inc()
}
