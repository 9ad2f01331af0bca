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

var ErrOrderNotFound = errors.New("order not found")

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `id, order_ref, order_type, status, user_id, amount, ad_post_id, created_at, updated_at`

func (r *OrderRepo) Insert(ctx context.Context, order model.Order) (model.Order, error) {
	if r.pool == nil {
		return model.Order{}, fmt.Errorf("postgres pool is nil")
	}

	const query = `
INSERT INTO orders (order_ref, order_type, status, user_id, amount, ad_post_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
RETURNING ` + orderColumns

	inserted, err := scanOrder(r.pool.QueryRow(ctx, query,
		order.Ref, string(order.Type), string(order.Status), order.UserID, order.Amount, order.AdPostID))
	if err != nil {
		return model.Order{}, fmt.Errorf("insert order: %w", err)
	}

	return inserted, nil
}

func (r *OrderRepo) GetByID(ctx context.Context, orderID int64) (model.Order, error) {
	if r.pool == nil {
		return model.Order{}, fmt.Errorf("postgres pool is nil")
	}

	order, err := scanOrder(r.pool.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE id = $1
LIMIT 1
`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

// LatestOpen returns the newest order still in an open status; id order
// gives last-writer-wins semantics for "the" active order.
func (r *OrderRepo) LatestOpen(ctx context.Context, userID int64) (model.Order, error) {
	if r.pool == nil {
		return model.Order{}, fmt.Errorf("postgres pool is nil")
	}

	order, err := scanOrder(r.pool.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE user_id = $1 AND status = ANY($2)
ORDER BY id DESC
LIMIT 1
`, userID, openStatusStrings()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get latest open order: %w", err)
	}

	return order, nil
}

func (r *OrderRepo) OpenAd(ctx context.Context, userID int64) (model.Order, error) {
	if r.pool == nil {
		return model.Order{}, fmt.Errorf("postgres pool is nil")
	}

	order, err := scanOrder(r.pool.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE user_id = $1 AND order_type = 'ad' AND status = ANY($2)
ORDER BY id DESC
LIMIT 1
`, userID, openStatusStrings()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get open ad order: %w", err)
	}

	return order, nil
}

// UpdateStatusIf advances the order only from one of the expected statuses.
// false with nil error means another writer already moved it.
func (r *OrderRepo) UpdateStatusIf(ctx context.Context, orderID int64, to enums.OrderStatus, from ...enums.OrderStatus) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if len(from) == 0 {
		return false, fmt.Errorf("expected statuses are required")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE orders SET status = $2, updated_at = NOW()
WHERE id = $1 AND status = ANY($3)
`, orderID, string(to), statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// SetAmountAndStatusIf prices the order and advances it in one guarded
// write. Used when gender capture decides between a free and a paid listing.
func (r *OrderRepo) SetAmountAndStatusIf(ctx context.Context, orderID, amount int64, to enums.OrderStatus, from ...enums.OrderStatus) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if len(from) == 0 {
		return false, fmt.Errorf("expected statuses are required")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE orders SET amount = $2, status = $3, updated_at = NOW()
WHERE id = $1 AND status = ANY($4)
`, orderID, amount, string(to), statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("set order amount and status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o         model.Order
		orderType string
		status    string
	)
	err := row.Scan(&o.ID, &o.Ref, &orderType, &status, &o.UserID, &o.Amount, &o.AdPostID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.Type = enums.OrderType(orderType)
	o.Status = enums.OrderStatus(status)
	return o, nil
}

func openStatusStrings() []string {
	return statusStrings(enums.OpenOrderStatuses())
}

func statusStrings(statuses []enums.OrderStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
