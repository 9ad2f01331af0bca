package mediaroute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/apperr"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/metrics"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/intent"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/ledger"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

// Route contexts, also used as the metrics label.
const (
	ContextPaymentReceipt = "payment_receipt"
	ContextCandidateMedia = "candidate_media"
	ContextUnknown        = "unknown"
)

const (
	maxPhotosPerAd = 2
	maxVideosPerAd = 1

	// Shortest user text that can serve as the listing body.
	minListingRunes = 20
	listingHistory  = 30
)

type StepMachine interface {
	Current(ctx context.Context, userID int64) (enums.Step, error)
	Set(ctx context.Context, userID int64, next enums.Step, expected ...enums.Step) (bool, error)
}

type OrderLedger interface {
	LatestOpen(ctx context.Context, userID int64) (model.Order, error)
	OpenAd(ctx context.Context, userID int64) (model.Order, error)
	Advance(ctx context.Context, orderID int64, to enums.OrderStatus, from ...enums.OrderStatus) (model.Order, bool, error)
}

type MediaStore interface {
	Insert(ctx context.Context, asset model.MediaAsset) (model.MediaAsset, error)
	CountForOrder(ctx context.Context, orderID int64) (photos int, videos int, err error)
	ListForOrder(ctx context.Context, orderID int64) ([]model.MediaAsset, error)
}

type MessageStore interface {
	ListRecentUserTexts(ctx context.Context, userID int64, limit int) ([]string, error)
}

type TaskCreator interface {
	CreateTask(ctx context.Context, taskType enums.TaskType, userID int64, sessionID string, payload any) (model.AdminTask, error)
}

type ReadinessGuard interface {
	Ensure(ctx context.Context) error
	Invalidate()
}

// Archiver is the slice of the transport the router needs: forwarding
// originals to the archive chat and re-uploading blurred copies.
type Archiver interface {
	ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int64, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	SendPhotoBytes(ctx context.Context, chatID int64, data []byte, caption string) (messageID int64, fileID string, err error)
}

// Blurrer anonymizes candidate photos. Implementations degrade to returning
// the input unchanged when the collaborator is unreachable.
type Blurrer interface {
	Blur(ctx context.Context, image []byte) ([]byte, error)
}

// Inbound is one attachment as the router sees it, already classified by the
// transport layer.
type Inbound struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Kind      enums.AttachmentKind
	FileID    string
	Caption   string
}

// Result carries what the dialog should say back. Side effects (archival,
// rows, tasks, order moves) have already happened when Route returns.
type Result struct {
	Accepted bool
	Context  string
	Messages []string
}

type Dependencies struct {
	Steps     StepMachine
	Orders    OrderLedger
	Media     MediaStore
	Messages  MessageStore
	Tasks     TaskCreator
	Readiness ReadinessGuard
	Archiver  Archiver
	Blurrer   Blurrer
}

// Service decides what an inbound photo or video means for the dialog and
// files it accordingly. Rejections never write rows.
type Service struct {
	steps     StepMachine
	orders    OrderLedger
	media     MediaStore
	messages  MessageStore
	tasks     TaskCreator
	readiness ReadinessGuard
	archiver  Archiver
	blurrer   Blurrer

	archiveChatID int64
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewService(deps Dependencies, archiveChatID int64, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		steps:         deps.Steps,
		orders:        deps.Orders,
		media:         deps.Media,
		messages:      deps.Messages,
		tasks:         deps.Tasks,
		readiness:     deps.Readiness,
		archiver:      deps.Archiver,
		blurrer:       deps.Blurrer,
		archiveChatID: archiveChatID,
		metrics:       m,
		logger:        logger,
	}
}

func (s *Service) Route(ctx context.Context, in Inbound) (Result, error) {
	routeCtx, order, err := s.classify(ctx, in)
	if err != nil {
		return Result{}, err
	}

	switch routeCtx {
	case ContextPaymentReceipt:
		if in.Kind != enums.AttachmentPhoto {
			return s.reject(routeCtx, "wrong_type", ui.WrongTypeForReceipt), nil
		}
		return s.acceptReceipt(ctx, in, order)

	case ContextCandidateMedia:
		switch in.Kind {
		case enums.AttachmentSticker:
			return s.reject(routeCtx, "wrong_type", ui.StickerIgnored), nil
		case enums.AttachmentPhoto, enums.AttachmentVideo:
		default:
			return s.reject(routeCtx, "wrong_type", ui.WrongTypeForCandidate), nil
		}
		return s.acceptCandidate(ctx, in, order)

	default:
		return s.reject(routeCtx, "wrong_context", ui.WrongContextMedia), nil
	}
}

// classify runs the context priority: receipt evidence first, then the
// candidate-media steps, everything else is unknown.
func (s *Service) classify(ctx context.Context, in Inbound) (string, model.Order, error) {
	step, err := s.steps.Current(ctx, in.UserID)
	if err != nil {
		return "", model.Order{}, fmt.Errorf("derive step: %w", err)
	}

	open, err := s.orders.LatestOpen(ctx, in.UserID)
	hasOpen := err == nil
	if err != nil && !errors.Is(err, ledger.ErrNoOpenOrder) {
		return "", model.Order{}, fmt.Errorf("load open order: %w", err)
	}

	receiptContext := step == enums.StepAwaitingPaymentReceipt || intent.PaymentEvidence(in.Caption)
	if hasOpen && !receiptContext {
		switch open.Status {
		case enums.OrderStatusAwaitingPayment, enums.OrderStatusAwaitingCheck, enums.OrderStatusPaymentSubmitted:
			receiptContext = true
		}
	}
	if receiptContext && hasOpen {
		return ContextPaymentReceipt, open, nil
	}

	if step == enums.StepAwaitingCandidateMedia || step == enums.StepCandidateMediaReady {
		ad, err := s.orders.OpenAd(ctx, in.UserID)
		if err != nil {
			if errors.Is(err, ledger.ErrNoOpenOrder) {
				return ContextUnknown, model.Order{}, nil
			}
			return "", model.Order{}, fmt.Errorf("load open ad: %w", err)
		}
		return ContextCandidateMedia, ad, nil
	}

	return ContextUnknown, model.Order{}, nil
}

func (s *Service) acceptReceipt(ctx context.Context, in Inbound, order model.Order) (Result, error) {
	if msg, ok := s.storageReady(ctx); !ok {
		return s.reject(ContextPaymentReceipt, "unready", msg), nil
	}

	asset, ok := s.persist(ctx, in, order, in.FileID, false)
	if !ok {
		return s.reject(ContextPaymentReceipt, "error", ui.StorageUnavailable), nil
	}

	_, applied, err := s.orders.Advance(ctx, order.ID, enums.OrderStatusPaymentSubmitted,
		enums.OrderStatusAwaitingPayment, enums.OrderStatusAwaitingCheck)
	if err != nil {
		s.logger.Error("submit payment", zap.Error(err), zap.Int64("order_id", order.ID))
	}
	if err == nil && !applied {
		s.logger.Warn("receipt for already submitted order", zap.Int64("order_id", order.ID))
	}

	if s.tasks != nil {
		payload := model.PaymentTaskPayload{
			OrderID:          order.ID,
			OrderType:        order.Type,
			Amount:           order.Amount,
			ReceiptFileID:    asset.FileID,
			ArchiveChatID:    asset.ArchiveChatID,
			ArchiveMessageID: asset.ArchiveMessageID,
		}
		if _, err := s.tasks.CreateTask(ctx, enums.TaskTypePayment, in.UserID, order.Ref, payload); err != nil {
			s.logger.Error("file payment task", zap.Error(err), zap.Int64("order_id", order.ID))
		}
	}

	s.count(ContextPaymentReceipt, "accepted")
	return Result{Accepted: true, Context: ContextPaymentReceipt, Messages: []string{ui.ReceiptReceived}}, nil
}

func (s *Service) acceptCandidate(ctx context.Context, in Inbound, order model.Order) (Result, error) {
	photos, videos, err := s.media.CountForOrder(ctx, order.ID)
	if err != nil {
		return Result{}, fmt.Errorf("count media for order %d: %w", order.ID, err)
	}

	kind, _ := in.Kind.MediaKind()
	if kind == enums.MediaKindPhoto && photos >= maxPhotosPerAd {
		return s.reject(ContextCandidateMedia, "cap", ui.MediaCapExceeded(kind)), nil
	}
	if kind == enums.MediaKindVideo && videos >= maxVideosPerAd {
		return s.reject(ContextCandidateMedia, "cap", ui.MediaCapExceeded(kind)), nil
	}

	if msg, ok := s.storageReady(ctx); !ok {
		return s.reject(ContextCandidateMedia, "unready", msg), nil
	}

	fileID := in.FileID
	blurApplies := s.blurrer != nil && kind == enums.MediaKindPhoto

	if _, ok := s.persist(ctx, in, order, fileID, blurApplies); !ok {
		return s.reject(ContextCandidateMedia, "error", ui.StorageUnavailable), nil
	}

	if kind == enums.MediaKindPhoto {
		photos++
	} else {
		videos++
	}

	messages := []string{}
	if photos >= maxPhotosPerAd && videos >= maxVideosPerAd {
		s.finishCandidateSet(ctx, in.UserID, order)
		messages = append(messages, ui.MediaAccepted)
	} else {
		messages = append(messages, ui.MediaProgress(photos, videos))
	}

	s.count(ContextCandidateMedia, "accepted")
	return Result{Accepted: true, Context: ContextCandidateMedia, Messages: messages}, nil
}

// finishCandidateSet marks the media set complete, moves the ad to review
// and files the publish task. Failures leave the order where the next
// attachment or a moderator can repair it.
func (s *Service) finishCandidateSet(ctx context.Context, userID int64, order model.Order) {
	// The step flips first: between the last attachment and the order
	// advance the dialog already reads as media-complete.
	if _, err := s.steps.Set(ctx, userID, enums.StepCandidateMediaReady, enums.StepAwaitingCandidateMedia); err != nil {
		s.logger.Warn("mark media set complete", zap.Error(err), zap.Int64("user_id", userID))
	}

	_, applied, err := s.orders.Advance(ctx, order.ID, enums.OrderStatusReadyToPublish, enums.OrderStatusAwaitingContent)
	if err != nil {
		s.logger.Error("move ad to review", zap.Error(err), zap.Int64("order_id", order.ID))
		return
	}
	if !applied {
		s.logger.Warn("ad already in review", zap.Int64("order_id", order.ID))
		return
	}

	assets, err := s.media.ListForOrder(ctx, order.ID)
	if err != nil {
		s.logger.Error("list media for publish task", zap.Error(err), zap.Int64("order_id", order.ID))
		assets = nil
	}

	refs := make([]model.TaskMediaRef, 0, len(assets))
	for _, asset := range assets {
		refs = append(refs, model.TaskMediaRef{
			Kind:             asset.Kind,
			FileID:           asset.FileID,
			ArchiveChatID:    asset.ArchiveChatID,
			ArchiveMessageID: asset.ArchiveMessageID,
		})
	}

	payload := model.PublishTaskPayload{
		OrderID: order.ID,
		Listing: s.mineListing(ctx, userID),
		Media:   refs,
	}

	if s.tasks == nil {
		return
	}
	if _, err := s.tasks.CreateTask(ctx, enums.TaskTypePublish, userID, order.Ref, payload); err != nil {
		s.logger.Error("file publish task", zap.Error(err), zap.Int64("order_id", order.ID))
	}
}

// mineListing picks the listing body from recent user texts: newest text
// long enough to describe a candidate.
func (s *Service) mineListing(ctx context.Context, userID int64) string {
	if s.messages == nil {
		return ""
	}

	texts, err := s.messages.ListRecentUserTexts(ctx, userID, listingHistory)
	if err != nil {
		s.logger.Warn("load texts for listing", zap.Error(err), zap.Int64("user_id", userID))
		return ""
	}

	for _, text := range texts {
		trimmed := strings.TrimSpace(text)
		if len([]rune(trimmed)) >= minListingRunes && !intent.PaymentEvidence(trimmed) {
			return trimmed
		}
	}
	return ""
}

// persist archives the attachment and inserts its row. blur=true routes
// photo bytes through the anonymizer and archives the blurred copy instead
// of forwarding the original.
func (s *Service) persist(ctx context.Context, in Inbound, order model.Order, fileID string, blur bool) (model.MediaAsset, bool) {
	kind, _ := in.Kind.MediaKind()

	var archiveMsgID int64
	storedFileID := fileID

	archived := false
	if blur {
		if blurredID, msgID, err := s.archiveBlurred(ctx, fileID); err != nil {
			s.logger.Warn("blur pipeline fell back to forward", zap.Error(err), zap.Int64("user_id", in.UserID))
		} else {
			storedFileID, archiveMsgID = blurredID, msgID
			archived = true
		}
	}

	if !archived && s.archiver != nil && s.archiveChatID != 0 {
		msgID, err := s.archiver.ForwardMessage(ctx, s.archiveChatID, in.ChatID, in.MessageID)
		if err != nil {
			s.logger.Error("forward to archive", zap.Error(err), zap.Int64("user_id", in.UserID))
		} else {
			archiveMsgID = msgID
		}
	}

	asset := model.MediaAsset{
		UserID:           in.UserID,
		OrderID:          &order.ID,
		Kind:             kind,
		FileID:           storedFileID,
		ArchiveChatID:    s.archiveChatID,
		ArchiveMessageID: archiveMsgID,
	}
	if archiveMsgID == 0 {
		asset.ArchiveChatID = 0
	}

	inserted, err := s.media.Insert(ctx, asset)
	if err != nil {
		if isSchemaError(err) && s.readiness != nil {
			s.readiness.Invalidate()
		}
		s.logger.Error("insert media asset", zap.Error(err), zap.Int64("user_id", in.UserID))
		s.countComponentError()
		return model.MediaAsset{}, false
	}

	return inserted, true
}

// archiveBlurred downloads the photo, blurs it, and uploads the result to
// the archive chat. The new file id replaces the original everywhere
// downstream.
func (s *Service) archiveBlurred(ctx context.Context, fileID string) (string, int64, error) {
	if s.archiver == nil || s.archiveChatID == 0 {
		return "", 0, fmt.Errorf("archive transport is not configured")
	}

	data, err := s.archiver.DownloadFile(ctx, fileID)
	if err != nil {
		return "", 0, fmt.Errorf("download photo: %w", err)
	}

	blurred, err := s.blurrer.Blur(ctx, data)
	if err != nil {
		return "", 0, fmt.Errorf("blur photo: %w", err)
	}

	msgID, newFileID, err := s.archiver.SendPhotoBytes(ctx, s.archiveChatID, blurred, "")
	if err != nil {
		return "", 0, fmt.Errorf("upload blurred photo: %w", err)
	}

	return newFileID, msgID, nil
}

// storageReady runs the schema guard and maps its failures onto user
// messages. ok=false blocks the write.
func (s *Service) storageReady(ctx context.Context) (string, bool) {
	if s.readiness == nil {
		return "", true
	}

	err := s.readiness.Ensure(ctx)
	if err == nil {
		return "", true
	}

	switch {
	case apperr.IsConnectivity(err):
		s.logger.Error("media storage unreachable", zap.Error(err))
		return ui.StorageConnectivity, false
	case apperr.IsReadiness(err):
		s.logger.Error("media storage schema incomplete", zap.Error(err))
		return ui.StorageUnavailable, false
	default:
		s.logger.Error("media readiness probe", zap.Error(err))
		return ui.StorageUnavailable, false
	}
}

func (s *Service) reject(routeCtx, outcome, message string) Result {
	s.count(routeCtx, outcome)
	return Result{Accepted: false, Context: routeCtx, Messages: []string{message}}
}

func (s *Service) count(routeCtx, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.MediaRouted.WithLabelValues(routeCtx, outcome).Inc()
}

func (s *Service) countComponentError() {
	if s.metrics == nil {
		return
	}
	s.metrics.Errors.WithLabelValues("mediaroute").Inc()
}

func isSchemaError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// undefined_column / undefined_table
	return pgErr.Code == "42703" || pgErr.Code == "42P01"
}
