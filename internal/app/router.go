package app

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/apperr"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	tginfra "github.com/hackslab/mening-nomzodim-backend/internal/infra/telegram"
	convosvc "github.com/hackslab/mening-nomzodim-backend/internal/services/convo"
	mediasvc "github.com/hackslab/mening-nomzodim-backend/internal/services/mediaroute"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

// Deep-link payload under listings: t.me/<bot>?start=contact_<adPostID>.
const contactLinkPrefix = "contact_"

// Handlers absorb per-update failures so one broken dialog never stops the
// polling loop. Anything unexpected is logged and counted.

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	if !update.Private {
		return nil
	}
	a.countIncoming("command")

	if update.Command != "start" {
		return nil
	}

	if _, err := a.profileRepo.Ensure(ctx, update.UserID, update.FirstName, update.Username); err != nil {
		a.routerError("ensure profile", update.UserID, err)
		return nil
	}

	if adPostID, ok := contactPayload(update.Args); ok {
		replies, err := a.engine.StartContactFlow(ctx, update.UserID, adPostID)
		if err != nil {
			a.routerError("start contact flow", update.UserID, err)
			return nil
		}
		a.sendReplies(ctx, update.ChatID, update.UserID, replies)
		return nil
	}

	a.sendAssistantText(ctx, update.ChatID, update.UserID, ui.Greeting)
	return nil
}

func (a *App) handleText(ctx context.Context, update tginfra.TextUpdate) error {
	if !update.Private {
		return nil
	}
	a.countIncoming("text")

	if _, err := a.profileRepo.Ensure(ctx, update.UserID, update.FirstName, update.Username); err != nil {
		a.routerError("ensure profile", update.UserID, err)
		return nil
	}

	// Stored even for blocked users, so an operator reviewing an
	// escalation sees what they kept writing.
	if _, err := a.messageRepo.Insert(ctx, model.Message{
		UserID:  update.UserID,
		Role:    enums.MessageRoleUser,
		Content: update.Text,
	}); err != nil {
		a.routerError("persist user message", update.UserID, err)
	}

	blocked, err := a.dialogState.IsBlocked(ctx, update.UserID)
	if err != nil {
		a.routerError("check block flag", update.UserID, err)
		return nil
	}
	if blocked {
		return nil
	}

	if err := a.reply.Enqueue(ctx, update.UserID, update.Text); err != nil {
		a.routerError("enqueue reply", update.UserID, err)
	}
	return nil
}

func (a *App) handleMedia(ctx context.Context, update tginfra.MediaUpdate) error {
	if !update.Private {
		return nil
	}
	a.countIncoming(string(update.Kind))

	if _, err := a.profileRepo.Ensure(ctx, update.UserID, update.FirstName, update.Username); err != nil {
		a.routerError("ensure profile", update.UserID, err)
		return nil
	}

	if _, err := a.messageRepo.Insert(ctx, model.Message{
		UserID:    update.UserID,
		Role:      enums.MessageRoleUser,
		Content:   update.Caption,
		MediaType: string(update.Kind),
	}); err != nil {
		a.routerError("persist user message", update.UserID, err)
	}

	blocked, err := a.dialogState.IsBlocked(ctx, update.UserID)
	if err != nil {
		a.routerError("check block flag", update.UserID, err)
		return nil
	}
	if blocked {
		return nil
	}

	res, err := a.mediaRouter.Route(ctx, mediasvc.Inbound{
		UserID:    update.UserID,
		ChatID:    update.ChatID,
		MessageID: update.MessageID,
		Kind:      update.Kind,
		FileID:    update.FileID,
		Caption:   update.Caption,
	})
	if err != nil {
		a.routerError("route media", update.UserID, err)
		a.sendAssistantText(ctx, update.ChatID, update.UserID, ui.GenericApology)
		return nil
	}

	for _, text := range res.Messages {
		a.sendAssistantText(ctx, update.ChatID, update.UserID, text)
	}
	return nil
}

func (a *App) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	a.countIncoming("callback")

	action, taskID, ok := parseDecisionToken(update.Data)
	if !ok {
		a.answerCallback(ctx, update.CallbackID, ui.DecisionUnknown)
		return nil
	}

	out, err := a.moderation.Apply(ctx, action, taskID, update.UserID)
	if err != nil {
		if apperr.IsValidation(err) {
			a.answerCallback(ctx, update.CallbackID, ui.DecisionUnknown)
			return nil
		}
		a.routerError("apply moderation decision", update.UserID, err)
		a.answerCallback(ctx, update.CallbackID, ui.DecisionFailed)
		return nil
	}
	if out.Already {
		a.answerCallback(ctx, update.CallbackID, ui.DecisionAlready)
		return nil
	}

	a.answerCallback(ctx, update.CallbackID, ui.DecisionApplied)
	return nil
}

func contactPayload(args string) (int64, bool) {
	args = strings.TrimSpace(args)
	if !strings.HasPrefix(args, contactLinkPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args, contactLinkPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseDecisionToken(data string) (enums.TaskAction, int64, bool) {
	verb, rawID, found := strings.Cut(strings.TrimSpace(data), ":")
	if !found {
		return "", 0, false
	}
	action, ok := enums.ParseTaskAction(verb)
	if !ok {
		return "", 0, false
	}
	taskID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || taskID <= 0 {
		return "", 0, false
	}
	return action, taskID, true
}

func (a *App) sendReplies(ctx context.Context, chatID, userID int64, replies []convosvc.Reply) {
	for _, r := range replies {
		if len(r.Photo) > 0 {
			if _, _, err := a.bot.SendPhotoBytes(ctx, chatID, r.Photo, r.Text); err != nil {
				a.routerError("send photo reply", userID, err)
				continue
			}
			a.countOutgoing("photo")
		} else {
			if _, err := a.bot.SendText(ctx, chatID, r.Text); err != nil {
				a.routerError("send text reply", userID, err)
				continue
			}
			a.countOutgoing("text")
		}
		a.persistAssistant(ctx, userID, r.Text)
	}
}

func (a *App) sendAssistantText(ctx context.Context, chatID, userID int64, text string) {
	if _, err := a.bot.SendText(ctx, chatID, text); err != nil {
		a.routerError("send text", userID, err)
		return
	}
	a.countOutgoing("text")
	a.persistAssistant(ctx, userID, text)
}

func (a *App) persistAssistant(ctx context.Context, userID int64, content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	if _, err := a.messageRepo.Insert(ctx, model.Message{
		UserID:  userID,
		Role:    enums.MessageRoleAssistant,
		Content: content,
	}); err != nil {
		a.logger.Warn("persist assistant message", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (a *App) answerCallback(ctx context.Context, callbackID, text string) {
	if err := a.bot.AnswerCallback(ctx, callbackID, text); err != nil {
		a.logger.Warn("answer callback", zap.Error(err))
	}
}

func (a *App) routerError(op string, userID int64, err error) {
	a.logger.Error(op+" failed", zap.Int64("user_id", userID), zap.Error(err))
	if a.metrics != nil {
		a.metrics.Errors.WithLabelValues("router").Inc()
	}
}

func (a *App) countIncoming(kind string) {
	if a.metrics != nil {
		a.metrics.IncomingMessages.WithLabelValues(kind).Inc()
	}
}

func (a *App) countOutgoing(kind string) {
	if a.metrics != nil {
		a.metrics.OutgoingMessages.WithLabelValues(kind).Inc()
	}
}
