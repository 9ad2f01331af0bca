package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
)

var ErrVipNotFound = errors.New("vip subscription not found")

type VipRepo struct {
	pool *pgxpool.Pool
}

func NewVipRepo(pool *pgxpool.Pool) *VipRepo {
	return &VipRepo{pool: pool}
}

const vipColumns = `id, user_id, status, expires_at, reminder_sent_at, created_at, updated_at`

func (r *VipRepo) GetCurrent(ctx context.Context, userID int64) (model.VipSubscription, error) {
	if r.pool == nil {
		return model.VipSubscription{}, fmt.Errorf("postgres pool is nil")
	}

	sub, err := scanVip(r.pool.QueryRow(ctx, `
SELECT `+vipColumns+`
FROM vip_subscriptions
WHERE user_id = $1
LIMIT 1
`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VipSubscription{}, ErrVipNotFound
		}
		return model.VipSubscription{}, fmt.Errorf("get vip subscription: %w", err)
	}

	return sub, nil
}

// UpsertActive activates or extends the user's subscription and rearms the
// expiry reminder for the new term.
func (r *VipRepo) UpsertActive(ctx context.Context, userID int64, expiresAt time.Time) (model.VipSubscription, error) {
	if r.pool == nil {
		return model.VipSubscription{}, fmt.Errorf("postgres pool is nil")
	}

	const query = `
INSERT INTO vip_subscriptions (user_id, status, expires_at, created_at, updated_at)
VALUES ($1, 'active', $2, NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE SET
	status = 'active',
	expires_at = EXCLUDED.expires_at,
	reminder_sent_at = NULL,
	updated_at = NOW()
RETURNING ` + vipColumns

	sub, err := scanVip(r.pool.QueryRow(ctx, query, userID, expiresAt))
	if err != nil {
		return model.VipSubscription{}, fmt.Errorf("upsert vip subscription: %w", err)
	}

	return sub, nil
}

// ListDueReminders returns active subscriptions expiring before the deadline
// that have not been reminded for the current term.
func (r *VipRepo) ListDueReminders(ctx context.Context, deadline time.Time, limit int) ([]model.VipSubscription, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+vipColumns+`
FROM vip_subscriptions
WHERE status = 'active' AND expires_at <= $1 AND expires_at > NOW() AND reminder_sent_at IS NULL
ORDER BY expires_at
LIMIT $2
`, deadline, limit)
	if err != nil {
		return nil, fmt.Errorf("list due vip reminders: %w", err)
	}
	defer rows.Close()

	return collectVips(rows)
}

func (r *VipRepo) MarkReminded(ctx context.Context, subID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	_, err := r.pool.Exec(ctx, `
UPDATE vip_subscriptions SET reminder_sent_at = NOW(), updated_at = NOW()
WHERE id = $1
`, subID)
	if err != nil {
		return fmt.Errorf("mark vip reminded: %w", err)
	}

	return nil
}

func (r *VipRepo) ListExpired(ctx context.Context, limit int) ([]model.VipSubscription, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+vipColumns+`
FROM vip_subscriptions
WHERE status = 'active' AND expires_at <= NOW()
ORDER BY expires_at
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired vip subscriptions: %w", err)
	}
	defer rows.Close()

	return collectVips(rows)
}

// MarkExpired flips an active subscription to expired. false means the row
// was already expired or re-extended in the meantime.
func (r *VipRepo) MarkExpired(ctx context.Context, subID int64) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE vip_subscriptions SET status = 'expired', updated_at = NOW()
WHERE id = $1 AND status = 'active' AND expires_at <= NOW()
`, subID)
	if err != nil {
		return false, fmt.Errorf("mark vip expired: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func collectVips(rows pgx.Rows) ([]model.VipSubscription, error) {
	var subs []model.VipSubscription
	for rows.Next() {
		sub, err := scanVip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vip subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collect vip subscriptions: %w", err)
	}
	return subs, nil
}

func scanVip(row pgx.Row) (model.VipSubscription, error) {
	var (
		s      model.VipSubscription
		status string
	)
	err := row.Scan(&s.ID, &s.UserID, &status, &s.ExpiresAt, &s.ReminderSentAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.VipSubscription{}, err
	}
	s.Status = enums.VipStatus(status)
	return s, nil
}
