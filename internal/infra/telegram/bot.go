package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

type CommandUpdate struct {
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	Private   bool
	Command   string
	Args      string
}

type TextUpdate struct {
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	Private   bool
	MessageID int
	Text      string
}

type MediaUpdate struct {
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	Private   bool
	MessageID int
	Kind      enums.AttachmentKind
	FileID    string
	Caption   string
}

type CallbackUpdate struct {
	CallbackID string
	ChatID     int64
	UserID     int64
	Username   string
	Data       string
}

type Handlers struct {
	OnCommand  func(context.Context, CommandUpdate) error
	OnText     func(context.Context, TextUpdate) error
	OnMedia    func(context.Context, MediaUpdate) error
	OnCallback func(context.Context, CallbackUpdate) error
}

// Bot wraps the Telegram API behind the narrow sends the services need.
// Every outbound call goes through one shared rate limiter.
type Bot struct {
	api         *tgbotapi.BotAPI
	httpClient  *http.Client
	limiter     *rate.Limiter
	pollTimeout int
}

func NewBot(token string, pollTimeout, sendRate int) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	if sendRate <= 0 {
		sendRate = 25
	}

	return &Bot{
		api:         api,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(sendRate), sendRate),
		pollTimeout: pollTimeout,
	}, nil
}

// Listen fans updates out across per-chat lanes: updates from the same chat
// run in arrival order (two quick texts must reach the reply buffer in the
// order they were sent), while separate chats stay concurrent. The first
// handler error stops the loop.
func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	lanes := newLaneDispatcher()
	handlerErr := make(chan error, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-handlerErr:
			return err
		case update := <-updates:
			u := update
			lanes.Dispatch(updateKey(u), func() {
				if err := dispatch(ctx, u, handlers); err != nil {
					select {
					case handlerErr <- err:
					default:
					}
				}
			})
		}
	}
}

func dispatch(ctx context.Context, update tgbotapi.Update, handlers Handlers) error {
	if msg := update.Message; msg != nil && msg.From != nil {
		private := msg.Chat != nil && msg.Chat.IsPrivate()

		if msg.IsCommand() && handlers.OnCommand != nil {
			return handlers.OnCommand(ctx, CommandUpdate{
				ChatID:    msg.Chat.ID,
				UserID:    msg.From.ID,
				Username:  msg.From.UserName,
				FirstName: msg.From.FirstName,
				Private:   private,
				Command:   msg.Command(),
				Args:      msg.CommandArguments(),
			})
		}

		if kind, fileID, ok := classifyAttachment(msg); ok && handlers.OnMedia != nil {
			return handlers.OnMedia(ctx, MediaUpdate{
				ChatID:    msg.Chat.ID,
				UserID:    msg.From.ID,
				Username:  msg.From.UserName,
				FirstName: msg.From.FirstName,
				Private:   private,
				MessageID: msg.MessageID,
				Kind:      kind,
				FileID:    fileID,
				Caption:   strings.TrimSpace(msg.Caption),
			})
		}

		if text := strings.TrimSpace(msg.Text); text != "" && handlers.OnText != nil {
			return handlers.OnText(ctx, TextUpdate{
				ChatID:    msg.Chat.ID,
				UserID:    msg.From.ID,
				Username:  msg.From.UserName,
				FirstName: msg.From.FirstName,
				Private:   private,
				MessageID: msg.MessageID,
				Text:      text,
			})
		}
		return nil
	}

	if cb := update.CallbackQuery; cb != nil && cb.From != nil && handlers.OnCallback != nil {
		chatID := int64(0)
		if cb.Message != nil {
			chatID = cb.Message.Chat.ID
		}
		return handlers.OnCallback(ctx, CallbackUpdate{
			CallbackID: cb.ID,
			ChatID:     chatID,
			UserID:     cb.From.ID,
			Username:   cb.From.UserName,
			Data:       cb.Data,
		})
	}

	return nil
}

func classifyAttachment(msg *tgbotapi.Message) (enums.AttachmentKind, string, bool) {
	switch {
	case len(msg.Photo) > 0:
		return enums.AttachmentPhoto, msg.Photo[len(msg.Photo)-1].FileID, true
	case msg.Video != nil:
		return enums.AttachmentVideo, msg.Video.FileID, true
	case msg.Sticker != nil:
		return enums.AttachmentSticker, msg.Sticker.FileID, true
	case msg.Document != nil:
		return enums.AttachmentUnsupported, msg.Document.FileID, true
	case msg.VideoNote != nil:
		return enums.AttachmentUnsupported, msg.VideoNote.FileID, true
	case msg.Voice != nil:
		return enums.AttachmentUnsupported, msg.Voice.FileID, true
	case msg.Audio != nil:
		return enums.AttachmentUnsupported, msg.Audio.FileID, true
	default:
		return "", "", false
	}
}

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	if chatID == 0 {
		return 0, fmt.Errorf("chat id is required")
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("send telegram message: %w", err)
	}
	return int64(sent.MessageID), nil
}

// SendButtons posts text with an inline keyboard built from the renderer's
// transport-agnostic rows.
func (b *Bot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]ui.Button) (int64, error) {
	if chatID == 0 {
		return 0, fmt.Errorf("chat id is required")
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = buildInlineKeyboard(rows)

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send keyboard message: %w", err)
	}
	return int64(sent.MessageID), nil
}

func buildInlineKeyboard(rows [][]ui.Button) tgbotapi.InlineKeyboardMarkup {
	keyboardRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.Data))
		}
		keyboardRows = append(keyboardRows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboardRows...)
}

func (b *Bot) SendPhotoFileID(ctx context.Context, chatID int64, fileID, caption string) (int64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	photo.Caption = caption

	sent, err := b.api.Send(photo)
	if err != nil {
		return 0, fmt.Errorf("send photo by file id: %w", err)
	}
	return int64(sent.MessageID), nil
}

func (b *Bot) SendVideoFileID(ctx context.Context, chatID int64, fileID, caption string) (int64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	video := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
	video.Caption = caption

	sent, err := b.api.Send(video)
	if err != nil {
		return 0, fmt.Errorf("send video by file id: %w", err)
	}
	return int64(sent.MessageID), nil
}

// SendPhotoBytes uploads an image and returns the message id together with
// the file id Telegram assigned, so the copy can be re-sent later without
// another upload.
func (b *Bot) SendPhotoBytes(ctx context.Context, chatID int64, data []byte, caption string) (int64, string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, "", err
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "photo.jpg", Bytes: data})
	photo.Caption = caption

	sent, err := b.api.Send(photo)
	if err != nil {
		return 0, "", fmt.Errorf("upload photo: %w", err)
	}

	fileID := ""
	if len(sent.Photo) > 0 {
		fileID = sent.Photo[len(sent.Photo)-1].FileID
	}
	return int64(sent.MessageID), fileID, nil
}

func (b *Bot) SendTyping(ctx context.Context, chatID int64) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("send chat action: %w", err)
	}
	return nil
}

func (b *Bot) ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	sent, err := b.api.Send(tgbotapi.NewForward(toChatID, fromChatID, messageID))
	if err != nil {
		return 0, fmt.Errorf("forward message: %w", err)
	}
	return int64(sent.MessageID), nil
}

func (b *Bot) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, fmt.Errorf("file id is required")
	}

	tgFile, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get telegram file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tgFile.Link(b.api.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("create file request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected telegram file status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read telegram file: %w", err)
	}
	return data, nil
}

func (b *Bot) GetInviteLink(ctx context.Context, chatID int64) (string, error) {
	if chatID == 0 {
		return "", fmt.Errorf("chat id is required")
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}

	link, err := b.api.GetInviteLink(tgbotapi.ChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return "", fmt.Errorf("get invite link: %w", err)
	}
	return link, nil
}

func (b *Bot) BanChatMember(ctx context.Context, chatID, userID int64) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("ban chat member: %w", err)
	}
	return nil
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if strings.TrimSpace(callbackID) == "" {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// RetryAfterOf extracts the flood-control pause Telegram asked for, zero when
// the error carries none.
func RetryAfterOf(err error) time.Duration {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter) * time.Second
	}
	return 0
}
