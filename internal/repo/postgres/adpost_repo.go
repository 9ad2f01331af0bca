package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
)

var ErrAdPostNotFound = errors.New("ad post not found")

type AdPostRepo struct {
	pool *pgxpool.Pool
}

func NewAdPostRepo(pool *pgxpool.Pool) *AdPostRepo {
	return &AdPostRepo{pool: pool}
}

const adPostColumns = `id, task_id, user_id, content, public_status, vip_status, archive_status, public_message_id, vip_message_id, archive_message_id, created_at`

// CreateForTask makes at most one post row per publish task. A repeated
// publish attempt gets the existing row back instead of a duplicate.
func (r *AdPostRepo) CreateForTask(ctx context.Context, taskID, userID int64, content string) (model.AdPost, error) {
	if r.pool == nil {
		return model.AdPost{}, fmt.Errorf("postgres pool is nil")
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO ad_posts (task_id, user_id, content, public_status, vip_status, archive_status, created_at)
VALUES ($1, $2, $3, 'pending', 'pending', 'pending', NOW())
ON CONFLICT (task_id) DO NOTHING
`, taskID, userID, content)
	if err != nil {
		return model.AdPost{}, fmt.Errorf("create ad post: %w", err)
	}

	return r.GetByTaskID(ctx, taskID)
}

func (r *AdPostRepo) GetByID(ctx context.Context, postID int64) (model.AdPost, error) {
	if r.pool == nil {
		return model.AdPost{}, fmt.Errorf("postgres pool is nil")
	}

	post, err := scanAdPost(r.pool.QueryRow(ctx, `
SELECT `+adPostColumns+`
FROM ad_posts
WHERE id = $1
LIMIT 1
`, postID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AdPost{}, ErrAdPostNotFound
		}
		return model.AdPost{}, fmt.Errorf("get ad post: %w", err)
	}

	return post, nil
}

func (r *AdPostRepo) GetByTaskID(ctx context.Context, taskID int64) (model.AdPost, error) {
	if r.pool == nil {
		return model.AdPost{}, fmt.Errorf("postgres pool is nil")
	}

	post, err := scanAdPost(r.pool.QueryRow(ctx, `
SELECT `+adPostColumns+`
FROM ad_posts
WHERE task_id = $1
LIMIT 1
`, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AdPost{}, ErrAdPostNotFound
		}
		return model.AdPost{}, fmt.Errorf("get ad post by task: %w", err)
	}

	return post, nil
}

func (r *AdPostRepo) SetPublicResult(ctx context.Context, postID int64, status enums.PostStatus, messageID int64) error {
	return r.setResult(ctx, postID, "public_status", "public_message_id", status, messageID)
}

func (r *AdPostRepo) SetVipResult(ctx context.Context, postID int64, status enums.PostStatus, messageID int64) error {
	return r.setResult(ctx, postID, "vip_status", "vip_message_id", status, messageID)
}

func (r *AdPostRepo) SetArchiveResult(ctx context.Context, postID int64, status enums.PostStatus, messageID int64) error {
	return r.setResult(ctx, postID, "archive_status", "archive_message_id", status, messageID)
}

func (r *AdPostRepo) setResult(ctx context.Context, postID int64, statusCol, messageCol string, status enums.PostStatus, messageID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	query := fmt.Sprintf(`UPDATE ad_posts SET %s = $2, %s = $3 WHERE id = $1`, statusCol, messageCol)
	_, err := r.pool.Exec(ctx, query, postID, string(status), messageID)
	if err != nil {
		return fmt.Errorf("set ad post %s: %w", statusCol, err)
	}

	return nil
}

func scanAdPost(row pgx.Row) (model.AdPost, error) {
	var (
		p             model.AdPost
		publicStatus  string
		vipStatus     string
		archiveStatus string
	)
	err := row.Scan(&p.ID, &p.TaskID, &p.UserID, &p.Content, &publicStatus, &vipStatus, &archiveStatus,
		&p.PublicMessageID, &p.VipMessageID, &p.ArchiveMessageID, &p.CreatedAt)
	if err != nil {
		return model.AdPost{}, err
	}
	p.PublicStatus = enums.PostStatus(publicStatus)
	p.VipStatus = enums.PostStatus(vipStatus)
	p.ArchiveStatus = enums.PostStatus(archiveStatus)
	return p, nil
}
