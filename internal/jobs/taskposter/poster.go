// Package taskposter drains pending moderation tasks into their review chats.
package taskposter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/infra/telegram"
	"github.com/hackslab/mening-nomzodim-backend/internal/metrics"
	"github.com/hackslab/mening-nomzodim-backend/internal/ui"
)

// TaskSource lists and transitions admin tasks.
type TaskSource interface {
	ListPending(ctx context.Context, limit int) ([]model.AdminTask, error)
	MarkPosted(ctx context.Context, taskID, chatID, messageID int64) (bool, error)
	MarkSkipped(ctx context.Context, taskID int64) (bool, error)
}

// Sender posts a task card with its decision buttons.
type Sender interface {
	SendButtons(ctx context.Context, chatID int64, text string, rows [][]ui.Button) (int64, error)
}

// ReviewChats maps each task type onto the chat whose admins decide it.
type ReviewChats struct {
	Payment    int64
	Publish    int64
	Escalation int64
}

func (c ReviewChats) For(taskType enums.TaskType) int64 {
	switch taskType {
	case enums.TaskTypePayment:
		return c.Payment
	case enums.TaskTypePublish:
		return c.Publish
	case enums.TaskTypeEscalation:
		return c.Escalation
	default:
		return 0
	}
}

// Job posts at most batchSize pending tasks per run; the app loops it on the
// configured interval. A task that fails to send stays pending for the next
// sweep, so the sweep itself never loses work.
type Job struct {
	tasks     TaskSource
	sender    Sender
	chats     ReviewChats
	batchSize int

	retryAfter func(error) time.Duration
	sleep      func(time.Duration)
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func New(tasks TaskSource, sender Sender, chats ReviewChats, batchSize int, m *metrics.Metrics, logger *zap.Logger) *Job {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		tasks:      tasks,
		sender:     sender,
		chats:      chats,
		batchSize:  batchSize,
		retryAfter: telegram.RetryAfterOf,
		sleep:      time.Sleep,
		metrics:    m,
		logger:     logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	pending, err := j.tasks.ListPending(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}

	for _, task := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := j.post(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) post(ctx context.Context, task model.AdminTask) error {
	chatID := j.chats.For(task.Type)
	if chatID == 0 {
		j.logger.Warn("no review chat configured, task stays pending",
			zap.Int64("task_id", task.ID),
			zap.String("type", string(task.Type)))
		return nil
	}

	text, buttons, ok := ui.RenderTask(task)
	if !ok {
		if _, err := j.tasks.MarkSkipped(ctx, task.ID); err != nil {
			return fmt.Errorf("mark task %d skipped: %w", task.ID, err)
		}
		j.logger.Warn("task payload is not renderable, skipped",
			zap.Int64("task_id", task.ID),
			zap.String("type", string(task.Type)))
		return nil
	}

	messageID, err := j.sender.SendButtons(ctx, chatID, text, buttons)
	if err != nil {
		if pause := j.retryAfter(err); pause > 0 {
			j.sleep(pause)
			messageID, err = j.sender.SendButtons(ctx, chatID, text, buttons)
		}
	}
	if err != nil {
		j.logger.Warn("post task failed, stays pending",
			zap.Int64("task_id", task.ID),
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		j.countError()
		return nil
	}

	applied, err := j.tasks.MarkPosted(ctx, task.ID, chatID, messageID)
	if err != nil {
		return fmt.Errorf("mark task %d posted: %w", task.ID, err)
	}
	if !applied {
		// Lost the race to a concurrent poster; the duplicate card is
		// harmless because callbacks key on the task, not the message.
		j.logger.Warn("task already posted elsewhere", zap.Int64("task_id", task.ID))
		return nil
	}

	j.countPosted(task.Type)
	return nil
}

func (j *Job) countPosted(taskType enums.TaskType) {
	if j.metrics == nil {
		return
	}
	j.metrics.TasksPosted.WithLabelValues(string(taskType)).Inc()
}

func (j *Job) countError() {
	if j.metrics == nil {
		return
	}
	j.metrics.Errors.WithLabelValues("taskposter").Inc()
}
