package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, user_id, role, content, media_type, created_at`

func (r *MessageRepo) Insert(ctx context.Context, msg model.Message) (model.Message, error) {
	if r.pool == nil {
		return model.Message{}, fmt.Errorf("postgres pool is nil")
	}

	const query = `
INSERT INTO messages (user_id, role, content, media_type, created_at)
VALUES ($1, $2, $3, $4, NOW())
RETURNING ` + messageColumns

	inserted, err := scanMessage(r.pool.QueryRow(ctx, query,
		msg.UserID, string(msg.Role), msg.Content, msg.MediaType))
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}

	return inserted, nil
}

// ListRecent returns the last messages of the dialog in chronological order.
func (r *MessageRepo) ListRecent(ctx context.Context, userID int64, limit int) ([]model.Message, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE user_id = $1
ORDER BY id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ListRecentUserTexts returns the user's own recent text messages, newest
// first, for phone mining and listing assembly.
func (r *MessageRepo) ListRecentUserTexts(ctx context.Context, userID int64, limit int) ([]string, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
SELECT content
FROM messages
WHERE user_id = $1 AND role = 'user' AND content <> ''
ORDER BY id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent user texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan user text: %w", err)
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent user texts: %w", err)
	}

	return texts, nil
}

func scanMessage(row pgx.Row) (model.Message, error) {
	var (
		m    model.Message
		role string
	)
	err := row.Scan(&m.ID, &m.UserID, &role, &m.Content, &m.MediaType, &m.CreatedAt)
	if err != nil {
		return model.Message{}, err
	}
	m.Role = enums.MessageRole(role)
	return m, nil
}
