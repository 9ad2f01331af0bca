package escalation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/intent"
	"github.com/hackslab/mening-nomzodim-backend/internal/state"
)

const (
	ReasonKeyword  = "keyword"
	ReasonSentinel = "sentinel"

	phoneRegion     = "UZ"
	identityHistory = 40
)

var phoneCandidate = regexp.MustCompile(`\+?\d[\d\s\-()]{6,}\d`)

type StepMachine interface {
	Current(ctx context.Context, userID int64) (enums.Step, error)
	Set(ctx context.Context, userID int64, next enums.Step, expected ...enums.Step) (bool, error)
}

type ProfileStore interface {
	Get(ctx context.Context, userID int64) (model.Profile, error)
	SetPhone(ctx context.Context, userID int64, phone string) error
}

type MessageStore interface {
	ListRecentUserTexts(ctx context.Context, userID int64, limit int) ([]string, error)
}

type TaskCreator interface {
	CreateTask(ctx context.Context, taskType enums.TaskType, userID int64, sessionID string, payload any) (model.AdminTask, error)
}

type ChatBanner interface {
	BanChatMember(ctx context.Context, chatID, userID int64) error
}

type Dependencies struct {
	State    state.Store
	Steps    StepMachine
	Profiles ProfileStore
	Messages MessageStore
	Tasks    TaskCreator
	Banner   ChatBanner
}

// Service hands a dialog over to a human operator and back. Escalation
// pauses the assistant first so nothing fires while the task is assembled.
type Service struct {
	state    state.Store
	steps    StepMachine
	profiles ProfileStore
	messages MessageStore
	tasks    TaskCreator
	banner   ChatBanner

	keywords     []string
	sentinel     string
	publicChatID int64
	logger       *zap.Logger
}

func NewService(deps Dependencies, keywords []string, sentinel string, publicChatID int64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = intent.Normalize(kw)
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}

	return &Service{
		state:        deps.State,
		steps:        deps.Steps,
		profiles:     deps.Profiles,
		messages:     deps.Messages,
		tasks:        deps.Tasks,
		banner:       deps.Banner,
		keywords:     normalized,
		sentinel:     sentinel,
		publicChatID: publicChatID,
		logger:       logger,
	}
}

// TriggeredByText reports whether the combined buffered text carries a
// complaint keyword. The reply path checks this before any AI call.
func (s *Service) TriggeredByText(text string) bool {
	normalized := intent.Normalize(text)
	for _, kw := range s.keywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// IsSentinel reports whether an AI reply is the reserved operator marker.
func (s *Service) IsSentinel(reply string) bool {
	return s.sentinel != "" && strings.TrimSpace(reply) == s.sentinel
}

// Escalate pauses the assistant, pins the step, and files a task for the
// operators with whatever identity the dialog has revealed. Task creation
// failure does not unwind the pause: operators still see it in the logs.
func (s *Service) Escalate(ctx context.Context, userID int64, message, reason string) error {
	if s.state == nil || s.steps == nil {
		return fmt.Errorf("escalation dependencies are not configured")
	}

	if err := s.state.SetPaused(ctx, userID, true); err != nil {
		return fmt.Errorf("pause dialog: %w", err)
	}

	if _, err := s.steps.Set(ctx, userID, enums.StepEscalatedToAdmin); err != nil {
		s.logger.Warn("persist escalated step", zap.Error(err), zap.Int64("user_id", userID))
	}

	payload := model.EscalationTaskPayload{
		Text:     message,
		Reason:   reason,
		DeepLink: fmt.Sprintf("tg://user?id=%d", userID),
	}
	payload.DisplayName, payload.Phone = s.resolveIdentity(ctx, userID)

	if s.tasks != nil {
		if _, err := s.tasks.CreateTask(ctx, enums.TaskTypeEscalation, userID, "", payload); err != nil {
			s.logger.Warn("create escalation task", zap.Error(err), zap.Int64("user_id", userID))
		}
	}

	return nil
}

// Resume gives the dialog back to the assistant: flags lifted, stale buffer
// dropped, step re-derived from the latest order.
func (s *Service) Resume(ctx context.Context, userID int64) error {
	if s.state == nil || s.steps == nil {
		return fmt.Errorf("escalation dependencies are not configured")
	}

	if err := s.state.SetPaused(ctx, userID, false); err != nil {
		return fmt.Errorf("unpause dialog: %w", err)
	}
	if err := s.state.SetBlocked(ctx, userID, false); err != nil {
		return fmt.Errorf("unblock dialog: %w", err)
	}

	token, err := s.state.CurrentToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("read pending token: %w", err)
	}
	if _, err := s.state.ClearPendingIf(ctx, userID, token); err != nil {
		return fmt.Errorf("drop pending buffer: %w", err)
	}

	if _, err := s.steps.Set(ctx, userID, enums.StepIdle, enums.StepEscalatedToAdmin); err != nil {
		return fmt.Errorf("lift escalated step: %w", err)
	}
	if _, err := s.steps.Current(ctx, userID); err != nil {
		return fmt.Errorf("re-derive step: %w", err)
	}

	return nil
}

type BlockResult struct {
	// Banned is the platform-side ban outcome. The local block holds
	// regardless.
	Banned bool
	BanErr error
}

// Block silences the user locally and tries to ban them from the public
// group. The platform ban is best effort.
func (s *Service) Block(ctx context.Context, userID int64) (BlockResult, error) {
	if s.state == nil {
		return BlockResult{}, fmt.Errorf("state store is nil")
	}

	if err := s.state.SetBlocked(ctx, userID, true); err != nil {
		return BlockResult{}, fmt.Errorf("set block flag: %w", err)
	}
	if err := s.state.SetPaused(ctx, userID, true); err != nil {
		return BlockResult{}, fmt.Errorf("pause blocked dialog: %w", err)
	}

	result := BlockResult{}
	if s.banner != nil && s.publicChatID != 0 {
		if err := s.banner.BanChatMember(ctx, s.publicChatID, userID); err != nil {
			result.BanErr = err
			s.logger.Warn("platform ban failed", zap.Error(err), zap.Int64("user_id", userID))
		} else {
			result.Banned = true
		}
	}

	return result, nil
}

func (s *Service) resolveIdentity(ctx context.Context, userID int64) (displayName, phone string) {
	displayName = strconv.FormatInt(userID, 10)

	if s.profiles != nil {
		profile, err := s.profiles.Get(ctx, userID)
		if err == nil {
			if name := profile.DisplayName(); name != "" {
				displayName = name
			}
			phone = profile.Phone
		}
	}

	if phone == "" && s.messages != nil {
		texts, err := s.messages.ListRecentUserTexts(ctx, userID, identityHistory)
		if err != nil {
			s.logger.Warn("load history for identity", zap.Error(err), zap.Int64("user_id", userID))
			return displayName, phone
		}
		phone = MinePhone(texts)
		if phone != "" && s.profiles != nil {
			if err := s.profiles.SetPhone(ctx, userID, phone); err != nil {
				s.logger.Warn("persist mined phone", zap.Error(err), zap.Int64("user_id", userID))
			}
		}
	}

	return displayName, phone
}

// MinePhone scans texts newest-first for something that parses as a valid
// Uzbek phone number and returns it in E.164.
func MinePhone(texts []string) string {
	for _, text := range texts {
		for _, candidate := range phoneCandidate.FindAllString(text, -1) {
			number, err := phonenumbers.Parse(candidate, phoneRegion)
			if err != nil {
				continue
			}
			if !phonenumbers.IsValidNumber(number) {
				continue
			}
			return phonenumbers.Format(number, phonenumbers.E164)
		}
	}
	return ""
}
