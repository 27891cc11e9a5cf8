package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/genstudio/internal/models"
)

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx DBTX) *OrderRepository {
	return &OrderRepository{db: tx}
}

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	const query = `INSERT INTO orders (id, user_id, plan) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, o.ID, o.UserID, string(o.Plan)); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	const query = `
SELECT id, user_id, plan, paid, paid_at, canceled, canceled_at, COALESCE(canceled_by, ''), COALESCE(stripe_session_id, ''), created_at
FROM orders WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var o models.Order
	var plan string
	var paid, canceled int
	var paidAt, canceledAt sql.NullTime
	if err := row.Scan(&o.ID, &o.UserID, &plan, &paid, &paidAt, &canceled, &canceledAt, &o.CanceledBy, &o.StripeSessionID, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Plan = models.Plan(plan)
	o.Paid = paid != 0
	o.Canceled = canceled != 0
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if canceledAt.Valid {
		o.CanceledAt = &canceledAt.Time
	}
	return &o, nil
}

func (r *OrderRepository) SetStripeSession(ctx context.Context, id, sessionID string) error {
	const query = `UPDATE orders SET stripe_session_id = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, sessionID, id); err != nil {
		return fmt.Errorf("set stripe session: %w", err)
	}
	return nil
}

// MarkPaid flips a pending order to paid. It reports false when the order is already terminal,
// which is how webhook replays are detected.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	const query = `UPDATE orders SET paid = 1, paid_at = ? WHERE id = ? AND paid = 0 AND canceled = 0`
	res, err := r.db.ExecContext(ctx, query, paidAt.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return affectedOne(res, "mark order paid")
}

// Cancel flips a pending order to canceled. Paid or already canceled orders are left alone.
func (r *OrderRepository) Cancel(ctx context.Context, id, canceledBy string, at time.Time) (bool, error) {
	const query = `UPDATE orders SET canceled = 1, canceled_at = ?, canceled_by = NULLIF(?, '') WHERE id = ? AND paid = 0 AND canceled = 0`
	res, err := r.db.ExecContext(ctx, query, at.UTC(), canceledBy, id)
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	return affectedOne(res, "cancel order")
}
