package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
)

type MediaRepo struct {
	pool *pgxpool.Pool
}

func NewMediaRepo(pool *pgxpool.Pool) *MediaRepo {
	return &MediaRepo{pool: pool}
}

const mediaColumns = `id, user_id, order_id, media_type, file_id, archive_chat_id, archive_message_id, created_at`

func (r *MediaRepo) Insert(ctx context.Context, asset model.MediaAsset) (model.MediaAsset, error) {
	if r.pool == nil {
		return model.MediaAsset{}, fmt.Errorf("postgres pool is nil")
	}

	const query = `
INSERT INTO media_assets (user_id, order_id, media_type, file_id, archive_chat_id, archive_message_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
RETURNING ` + mediaColumns

	inserted, err := scanMediaAsset(r.pool.QueryRow(ctx, query,
		asset.UserID, asset.OrderID, string(asset.Kind), asset.FileID, asset.ArchiveChatID, asset.ArchiveMessageID))
	if err != nil {
		return model.MediaAsset{}, fmt.Errorf("insert media asset: %w", err)
	}

	return inserted, nil
}

// CountForOrder reports how many photos and videos an order has collected.
func (r *MediaRepo) CountForOrder(ctx context.Context, orderID int64) (photos int, videos int, err error) {
	if r.pool == nil {
		return 0, 0, fmt.Errorf("postgres pool is nil")
	}

	const query = `
SELECT
	COUNT(*) FILTER (WHERE media_type = 'photo'),
	COUNT(*) FILTER (WHERE media_type = 'video')
FROM media_assets
WHERE order_id = $1
`

	err = r.pool.QueryRow(ctx, query, orderID).Scan(&photos, &videos)
	if err != nil {
		return 0, 0, fmt.Errorf("count media assets: %w", err)
	}

	return photos, videos, nil
}

func (r *MediaRepo) ListForOrder(ctx context.Context, orderID int64) ([]model.MediaAsset, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+mediaColumns+`
FROM media_assets
WHERE order_id = $1
ORDER BY id
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}
	defer rows.Close()

	var assets []model.MediaAsset
	for rows.Next() {
		asset, err := scanMediaAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list media assets: %w", err)
	}

	return assets, nil
}

// DeleteForOrder clears collected media after a moderator asks for a re-send.
func (r *MediaRepo) DeleteForOrder(ctx context.Context, orderID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	_, err := r.pool.Exec(ctx, `DELETE FROM media_assets WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete media assets: %w", err)
	}

	return nil
}

func scanMediaAsset(row pgx.Row) (model.MediaAsset, error) {
	var (
		a    model.MediaAsset
		kind string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.OrderID, &kind, &a.FileID, &a.ArchiveChatID, &a.ArchiveMessageID, &a.CreatedAt)
	if err != nil {
		return model.MediaAsset{}, err
	}
	a.Kind = enums.MediaKind(kind)
	return a, nil
}
