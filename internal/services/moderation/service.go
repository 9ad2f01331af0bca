package moderation

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/apperr"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/metrics"
	"github.com/hackslab/mening-nomzodim-backend/internal/services/escalation"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

type TaskStore interface {
	Insert(ctx context.Context, taskType enums.TaskType, userID int64, sessionID string, payload any) (model.AdminTask, error)
	GetByID(ctx context.Context, taskID int64) (model.AdminTask, error)
	ApplyDecision(ctx context.Context, taskID int64, to enums.TaskStatus, decidedBy int64, from ...enums.TaskStatus) (bool, error)
}

type OrderLedger interface {
	Advance(ctx context.Context, orderID int64, to enums.OrderStatus, from ...enums.OrderStatus) (model.Order, bool, error)
	Complete(ctx context.Context, orderID int64) (model.Order, bool, error)
}

type AdPostStore interface {
	CreateForTask(ctx context.Context, taskID, userID int64, content string) (model.AdPost, error)
	GetByID(ctx context.Context, postID int64) (model.AdPost, error)
	SetPublicResult(ctx context.Context, postID int64, status enums.PostStatus, messageID int64) error
	SetVipResult(ctx context.Context, postID int64, status enums.PostStatus, messageID int64) error
	SetArchiveResult(ctx context.Context, postID int64, status enums.PostStatus, messageID int64) error
}

type MediaStore interface {
	DeleteForOrder(ctx context.Context, orderID int64) error
}

type ProfileStore interface {
	Get(ctx context.Context, userID int64) (model.Profile, error)
}

type VipAccess interface {
	Activate(ctx context.Context, userID int64) (model.VipSubscription, error)
}

type EscalationResolver interface {
	Resume(ctx context.Context, userID int64) error
	Block(ctx context.Context, userID int64) (escalation.BlockResult, error)
}

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (int64, error)
	SendPhotoFileID(ctx context.Context, chatID int64, fileID, caption string) (int64, error)
	SendVideoFileID(ctx context.Context, chatID int64, fileID, caption string) (int64, error)
	GetInviteLink(ctx context.Context, chatID int64) (string, error)
}

// Chats are the non-review destinations moderation posts to.
type Chats struct {
	Public  int64
	Vip     int64
	Archive int64
	Audit   int64
}

type Dependencies struct {
	Tasks       TaskStore
	Orders      OrderLedger
	AdPosts     AdPostStore
	Media       MediaStore
	Profiles    ProfileStore
	Vip         VipAccess
	Escalations EscalationResolver
	Sender      Sender
}

type transition struct {
	to   enums.TaskStatus
	from []enums.TaskStatus
}

var transitions = map[enums.TaskAction]transition{
	enums.ActionApprove:    {to: enums.TaskStatusApproved, from: []enums.TaskStatus{enums.TaskStatusPosted}},
	enums.ActionReject:     {to: enums.TaskStatusRejected, from: []enums.TaskStatus{enums.TaskStatusPosted}},
	enums.ActionMediaOK:    {to: enums.TaskStatusMediaApproved, from: []enums.TaskStatus{enums.TaskStatusPosted}},
	enums.ActionMediaNo:    {to: enums.TaskStatusMediaRejected, from: []enums.TaskStatus{enums.TaskStatusPosted}},
	enums.ActionMediaReset: {to: enums.TaskStatusMediaReset, from: []enums.TaskStatus{enums.TaskStatusPosted, enums.TaskStatusMediaApproved, enums.TaskStatusMediaRejected}},
	enums.ActionPublish:    {to: enums.TaskStatusPublished, from: []enums.TaskStatus{enums.TaskStatusMediaApproved}},
	enums.ActionEscResume:  {to: enums.TaskStatusResumed, from: []enums.TaskStatus{enums.TaskStatusPosted}},
	enums.ActionEscBlock:   {to: enums.TaskStatusBlocked, from: []enums.TaskStatus{enums.TaskStatusPosted}},
}

var actionsByType = map[enums.TaskType][]enums.TaskAction{
	enums.TaskTypePayment:    {enums.ActionApprove, enums.ActionReject},
	enums.TaskTypePublish:    {enums.ActionMediaOK, enums.ActionMediaNo, enums.ActionMediaReset, enums.ActionPublish},
	enums.TaskTypeEscalation: {enums.ActionEscResume, enums.ActionEscBlock},
}

// Service owns the admin-task queue: filing tasks and applying review
// decisions exactly once. The status transition is the commit point; every
// side effect runs after it and is never rolled back.
type Service struct {
	tasks       TaskStore
	orders      OrderLedger
	adPosts     AdPostStore
	media       MediaStore
	profiles    ProfileStore
	vip         VipAccess
	escalations EscalationResolver
	sender      Sender

	chats   Chats
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewService(deps Dependencies, chats Chats, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tasks:       deps.Tasks,
		orders:      deps.Orders,
		adPosts:     deps.AdPosts,
		media:       deps.Media,
		profiles:    deps.Profiles,
		vip:         deps.Vip,
		escalations: deps.Escalations,
		sender:      deps.Sender,
		chats:       chats,
		metrics:     m,
		logger:      logger,
	}
}

// CreateTask files a pending task for the poster worker. Callers on the
// conversational path treat a failure here as non-fatal.
func (s *Service) CreateTask(ctx context.Context, taskType enums.TaskType, userID int64, sessionID string, payload any) (model.AdminTask, error) {
	if s.tasks == nil {
		return model.AdminTask{}, fmt.Errorf("task store is nil")
	}

	task, err := s.tasks.Insert(ctx, taskType, userID, sessionID, payload)
	if err != nil {
		s.logger.Error("insert admin task",
			zap.Error(err),
			zap.String("type", string(taskType)),
			zap.Int64("user_id", userID))
		s.countError()
		return model.AdminTask{}, fmt.Errorf("insert %s task: %w", taskType, err)
	}

	return task, nil
}

// Outcome reports how a decision landed. Already means another moderator got
// there first and no effects ran.
type Outcome struct {
	Applied bool
	Already bool
	Task    model.AdminTask
}

// Apply executes a moderator's decision. The conditional status update
// decides the winner; effects (order moves, notifications, channel posts)
// follow only a won transition and their failures are logged, not returned.
func (s *Service) Apply(ctx context.Context, action enums.TaskAction, taskID, decidedBy int64) (Outcome, error) {
	tr, ok := transitions[action]
	if !ok {
		return Outcome{}, apperr.Validation("action", fmt.Sprintf("unknown verb %q", action))
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load task %d: %w", taskID, err)
	}

	if !actionAllowed(task.Type, action) {
		return Outcome{}, apperr.Validation("action", fmt.Sprintf("%s does not apply to a %s task", action, task.Type))
	}

	applied, err := s.tasks.ApplyDecision(ctx, taskID, tr.to, decidedBy, tr.from...)
	if err != nil {
		s.countAction(action, "error")
		return Outcome{}, fmt.Errorf("apply %s to task %d: %w", action, taskID, err)
	}
	if !applied {
		s.countAction(action, "already")
		return Outcome{Already: true, Task: task}, nil
	}

	task.Status = tr.to
	task.DecidedBy = decidedBy
	s.countAction(action, "applied")

	s.runEffects(ctx, action, task)
	s.audit(ctx, action, task, decidedBy)

	return Outcome{Applied: true, Task: task}, nil
}

func actionAllowed(taskType enums.TaskType, action enums.TaskAction) bool {
	for _, allowed := range actionsByType[taskType] {
		if allowed == action {
			return true
		}
	}
	return false
}

func (s *Service) runEffects(ctx context.Context, action enums.TaskAction, task model.AdminTask) {
	var err error
	switch action {
	case enums.ActionApprove:
		err = s.effectApprove(ctx, task)
	case enums.ActionReject:
		err = s.effectReject(ctx, task)
	case enums.ActionMediaOK:
		err = s.notify(ctx, task.UserID, ui.MediaAccepted)
	case enums.ActionMediaNo:
		err = s.notify(ctx, task.UserID, ui.MediaRejected)
	case enums.ActionMediaReset:
		err = s.effectMediaReset(ctx, task)
	case enums.ActionPublish:
		err = s.effectPublish(ctx, task)
	case enums.ActionEscResume:
		err = s.effectResume(ctx, task)
	case enums.ActionEscBlock:
		err = s.effectBlock(ctx, task)
	}

	if err != nil {
		s.logger.Error("moderation effect failed",
			zap.Error(err),
			zap.String("action", string(action)),
			zap.Int64("task_id", task.ID),
			zap.Int64("user_id", task.UserID))
		s.countError()
	}
}

func (s *Service) effectApprove(ctx context.Context, task model.AdminTask) error {
	var payload model.PaymentTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode payment payload: %w", err)
	}

	switch payload.OrderType {
	case enums.OrderTypeContact:
		return s.fulfillContact(ctx, task.UserID, payload.OrderID)
	case enums.OrderTypeVip:
		return s.fulfillVip(ctx, task.UserID, payload.OrderID)
	case enums.OrderTypeAd:
		_, applied, err := s.orders.Advance(ctx, payload.OrderID, enums.OrderStatusAwaitingContent, enums.OrderStatusPaymentSubmitted)
		if err != nil {
			return fmt.Errorf("move order %d to content stage: %w", payload.OrderID, err)
		}
		if !applied {
			s.logger.Warn("approved order already moved", zap.Int64("order_id", payload.OrderID))
			return nil
		}
		return s.notify(ctx, task.UserID, ui.ContentInstructions)
	default:
		return fmt.Errorf("payment payload carries unknown order type %q", payload.OrderType)
	}
}

func (s *Service) fulfillContact(ctx context.Context, buyerID, orderID int64) error {
	order, applied, err := s.orders.Complete(ctx, orderID)
	if err != nil {
		return fmt.Errorf("complete contact order %d: %w", orderID, err)
	}
	if !applied {
		s.logger.Warn("contact order already closed", zap.Int64("order_id", orderID))
		return nil
	}
	if order.AdPostID == nil {
		return fmt.Errorf("contact order %d has no listing reference", orderID)
	}

	post, err := s.adPosts.GetByID(ctx, *order.AdPostID)
	if err != nil {
		return fmt.Errorf("load listing %d: %w", *order.AdPostID, err)
	}
	owner, err := s.profiles.Get(ctx, post.UserID)
	if err != nil {
		return fmt.Errorf("load listing owner %d: %w", post.UserID, err)
	}

	return s.notify(ctx, buyerID, ui.ContactReveal(owner))
}

func (s *Service) fulfillVip(ctx context.Context, userID, orderID int64) error {
	if _, err := s.vip.Activate(ctx, userID); err != nil {
		return fmt.Errorf("activate vip for %d: %w", userID, err)
	}

	if _, applied, err := s.orders.Complete(ctx, orderID); err != nil {
		s.logger.Warn("complete vip order", zap.Error(err), zap.Int64("order_id", orderID))
	} else if !applied {
		s.logger.Warn("vip order already closed", zap.Int64("order_id", orderID))
	}

	link := ""
	if s.chats.Vip != 0 {
		var err error
		link, err = s.sender.GetInviteLink(ctx, s.chats.Vip)
		if err != nil {
			s.logger.Warn("vip invite link", zap.Error(err), zap.Int64("user_id", userID))
		}
	}

	return s.notify(ctx, userID, ui.VipActivated(link))
}

func (s *Service) effectReject(ctx context.Context, task model.AdminTask) error {
	var payload model.PaymentTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode payment payload: %w", err)
	}

	_, applied, err := s.orders.Advance(ctx, payload.OrderID, enums.OrderStatusAwaitingCheck, enums.OrderStatusPaymentSubmitted)
	if err != nil {
		return fmt.Errorf("return order %d to receipt stage: %w", payload.OrderID, err)
	}
	if !applied {
		s.logger.Warn("rejected order already moved", zap.Int64("order_id", payload.OrderID))
		return nil
	}

	return s.notify(ctx, task.UserID, ui.ReceiptRejected)
}

func (s *Service) effectMediaReset(ctx context.Context, task model.AdminTask) error {
	var payload model.PublishTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode publish payload: %w", err)
	}

	if err := s.media.DeleteForOrder(ctx, payload.OrderID); err != nil {
		return fmt.Errorf("drop media for order %d: %w", payload.OrderID, err)
	}

	if _, applied, err := s.orders.Advance(ctx, payload.OrderID, enums.OrderStatusAwaitingContent, enums.OrderStatusReadyToPublish); err != nil {
		return fmt.Errorf("reopen order %d for content: %w", payload.OrderID, err)
	} else if !applied {
		s.logger.Warn("reset order already moved", zap.Int64("order_id", payload.OrderID))
	}

	return s.notify(ctx, task.UserID, ui.MediaResetNotice)
}

func (s *Service) effectPublish(ctx context.Context, task model.AdminTask) error {
	var payload model.PublishTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode publish payload: %w", err)
	}

	post, err := s.adPosts.CreateForTask(ctx, task.ID, task.UserID, payload.Listing)
	if err != nil {
		return fmt.Errorf("create ad post for task %d: %w", task.ID, err)
	}

	allPosted := true
	destinations := []struct {
		chatID int64
		record func(context.Context, int64, enums.PostStatus, int64) error
		name   string
	}{
		{s.chats.Public, s.adPosts.SetPublicResult, "public"},
		{s.chats.Vip, s.adPosts.SetVipResult, "vip"},
		{s.chats.Archive, s.adPosts.SetArchiveResult, "archive"},
	}

	for _, dest := range destinations {
		messageID, sendErr := s.postListing(ctx, dest.chatID, payload)
		status := enums.PostStatusPosted
		if sendErr != nil {
			status = enums.PostStatusFailed
			allPosted = false
			s.logger.Error("post listing",
				zap.Error(sendErr),
				zap.String("destination", dest.name),
				zap.Int64("post_id", post.ID))
		}
		if err := dest.record(ctx, post.ID, status, messageID); err != nil {
			s.logger.Error("record post result",
				zap.Error(err),
				zap.String("destination", dest.name),
				zap.Int64("post_id", post.ID))
		}
	}

	if !allPosted {
		// Order stays ready_to_publish for manual follow-up.
		return fmt.Errorf("listing %d was not delivered to every destination", post.ID)
	}

	if _, applied, err := s.orders.Complete(ctx, payload.OrderID); err != nil {
		return fmt.Errorf("complete published order %d: %w", payload.OrderID, err)
	} else if !applied {
		s.logger.Warn("published order already closed", zap.Int64("order_id", payload.OrderID))
	}

	return s.notify(ctx, task.UserID, ui.AdPublished)
}

// postListing delivers one listing to one chat. The first media item carries
// the text as caption; a text-only listing goes out as a plain message. The
// returned id anchors the listing in that chat.
func (s *Service) postListing(ctx context.Context, chatID int64, payload model.PublishTaskPayload) (int64, error) {
	if chatID == 0 {
		return 0, fmt.Errorf("destination chat is not configured")
	}

	if len(payload.Media) == 0 {
		return s.sender.SendText(ctx, chatID, payload.Listing)
	}

	var anchorID int64
	for i, item := range payload.Media {
		caption := ""
		if i == 0 {
			caption = payload.Listing
		}

		var messageID int64
		var err error
		if item.Kind == enums.MediaKindVideo {
			messageID, err = s.sender.SendVideoFileID(ctx, chatID, item.FileID, caption)
		} else {
			messageID, err = s.sender.SendPhotoFileID(ctx, chatID, item.FileID, caption)
		}
		if err != nil {
			return 0, err
		}
		if i == 0 {
			anchorID = messageID
		}
	}

	return anchorID, nil
}

func (s *Service) effectResume(ctx context.Context, task model.AdminTask) error {
	if err := s.escalations.Resume(ctx, task.UserID); err != nil {
		return fmt.Errorf("resume dialog for %d: %w", task.UserID, err)
	}
	return s.notify(ctx, task.UserID, ui.ResumeNotice)
}

func (s *Service) effectBlock(ctx context.Context, task model.AdminTask) error {
	result, err := s.escalations.Block(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("block dialog for %d: %w", task.UserID, err)
	}
	if result.BanErr != nil {
		s.logger.Warn("public chat ban failed",
			zap.Error(result.BanErr),
			zap.Int64("user_id", task.UserID))
	}
	return nil
}

func (s *Service) notify(ctx context.Context, userID int64, text string) error {
	if s.sender == nil {
		return nil
	}
	if _, err := s.sender.SendText(ctx, userID, text); err != nil {
		return fmt.Errorf("notify user %d: %w", userID, err)
	}
	return nil
}

func (s *Service) audit(ctx context.Context, action enums.TaskAction, task model.AdminTask, decidedBy int64) {
	if s.sender == nil || s.chats.Audit == 0 {
		return
	}

	line := fmt.Sprintf("Vazifa #%d (%s): %s, admin %d, foydalanuvchi %d",
		task.ID, task.Type, action, decidedBy, task.UserID)
	if _, err := s.sender.SendText(ctx, s.chats.Audit, line); err != nil {
		s.logger.Warn("audit line", zap.Error(err), zap.Int64("task_id", task.ID))
	}
}

func (s *Service) countAction(action enums.TaskAction, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ModerationActions.WithLabelValues(string(action), outcome).Inc()
}

func (s *Service) countError() {
	if s.metrics == nil {
		return
	}
	s.metrics.Errors.WithLabelValues("moderation").Inc()
}
