package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
)

var ErrTaskNotFound = errors.New("task not found")

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `id, task_type, status, payload, user_id, session_id, posted_chat_id, posted_message_id, decided_by, decided_at, created_at, updated_at`

func (r *TaskRepo) Insert(ctx context.Context, taskType enums.TaskType, userID int64, sessionID string, payload any) (model.AdminTask, error) {
	if r.pool == nil {
		return model.AdminTask{}, fmt.Errorf("postgres pool is nil")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return model.AdminTask{}, fmt.Errorf("marshal task payload: %w", err)
	}

	const query = `
INSERT INTO admin_tasks (task_type, status, payload, user_id, session_id, created_at, updated_at)
VALUES ($1, 'pending', $2, $3, $4, NOW(), NOW())
RETURNING ` + taskColumns

	task, err := scanTask(r.pool.QueryRow(ctx, query, string(taskType), raw, userID, sessionID))
	if err != nil {
		return model.AdminTask{}, fmt.Errorf("insert task: %w", err)
	}

	return task, nil
}

func (r *TaskRepo) GetByID(ctx context.Context, taskID int64) (model.AdminTask, error) {
	if r.pool == nil {
		return model.AdminTask{}, fmt.Errorf("postgres pool is nil")
	}

	task, err := scanTask(r.pool.QueryRow(ctx, `
SELECT `+taskColumns+`
FROM admin_tasks
WHERE id = $1
LIMIT 1
`, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AdminTask{}, ErrTaskNotFound
		}
		return model.AdminTask{}, fmt.Errorf("get task: %w", err)
	}

	return task, nil
}

// ListPending returns the newest unposted tasks first, so fresh work reaches
// moderators even when the queue is backed up.
func (r *TaskRepo) ListPending(ctx context.Context, limit int) ([]model.AdminTask, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+taskColumns+`
FROM admin_tasks
WHERE status = 'pending'
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.AdminTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}

	return tasks, nil
}

// MarkPosted records where the review card landed. Only pending tasks move,
// so a second poster instance cannot double-post.
func (r *TaskRepo) MarkPosted(ctx context.Context, taskID, chatID, messageID int64) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE admin_tasks SET status = 'posted', posted_chat_id = $2, posted_message_id = $3, updated_at = NOW()
WHERE id = $1 AND status = 'pending'
`, taskID, chatID, messageID)
	if err != nil {
		return false, fmt.Errorf("mark task posted: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *TaskRepo) MarkSkipped(ctx context.Context, taskID int64) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE admin_tasks SET status = 'skipped', updated_at = NOW()
WHERE id = $1 AND status = 'pending'
`, taskID)
	if err != nil {
		return false, fmt.Errorf("mark task skipped: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ApplyDecision moves a task to its decided status only when it is still in
// one of the expected statuses. false with nil error means another moderator
// won the race; callers treat that as already processed.
func (r *TaskRepo) ApplyDecision(ctx context.Context, taskID int64, to enums.TaskStatus, decidedBy int64, from ...enums.TaskStatus) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if len(from) == 0 {
		return false, fmt.Errorf("expected statuses are required")
	}

	expected := make([]string, 0, len(from))
	for _, s := range from {
		expected = append(expected, string(s))
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE admin_tasks SET status = $2, decided_by = $3, decided_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = ANY($4)
`, taskID, string(to), decidedBy, expected)
	if err != nil {
		return false, fmt.Errorf("apply task decision: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func scanTask(row pgx.Row) (model.AdminTask, error) {
	var (
		t        model.AdminTask
		taskType string
		status   string
	)
	err := row.Scan(&t.ID, &taskType, &status, &t.Payload, &t.UserID, &t.SessionID,
		&t.PostedChatID, &t.PostedMessageID, &t.DecidedBy, &t.DecidedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.AdminTask{}, err
	}
	t.Type = enums.TaskType(taskType)
	t.Status = enums.TaskStatus(status)
	return t, nil
}
