package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/genstudio/internal/models"
)

type ReservationRepository struct {
	db DBTX
}

func NewReservationRepository(db DBTX) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) WithTx(tx DBTX) *ReservationRepository {
	return &ReservationRepository{db: tx}
}

func (r *ReservationRepository) Create(ctx context.Context, res *models.CreditReservation) error {
	const query = `INSERT INTO credit_reservations (id, user_id, amount, kind, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := r.db.ExecContext(ctx, query, res.ID, res.UserID, res.Amount, string(res.Kind), string(res.Status), createdAt.UTC()); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

const reservationColumns = `id, user_id, amount, kind, status, COALESCE(reason, ''), created_at, settled_at`

func scanReservation(scan func(dest ...any) error) (*models.CreditReservation, error) {
	var res models.CreditReservation
	var kind, status string
	var settledAt sql.NullTime
	if err := scan(&res.ID, &res.UserID, &res.Amount, &kind, &status, &res.Reason, &res.CreatedAt, &settledAt); err != nil {
		return nil, err
	}
	res.Kind = models.ArtifactKind(kind)
	res.Status = models.ReservationStatus(status)
	if settledAt.Valid {
		res.SettledAt = &settledAt.Time
	}
	return &res, nil
}

func (r *ReservationRepository) FindByID(ctx context.Context, id string) (*models.CreditReservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM credit_reservations WHERE id = ?`, id)
	res, err := scanReservation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan reservation: %w", err)
	}
	return res, nil
}

// Settle moves a pending reservation to a final status. Only the first settlement wins.
func (r *ReservationRepository) Settle(ctx context.Context, id string, status models.ReservationStatus, reason string, at time.Time) (bool, error) {
	const query = `UPDATE credit_reservations SET status = ?, reason = NULLIF(?, ''), settled_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, string(status), reason, at.UTC(), id, string(models.ReservationPending))
	if err != nil {
		return false, fmt.Errorf("settle reservation: %w", err)
	}
	return affectedOne(res, "settle reservation")
}

// ListStale returns pending reservations created before the cutoff, oldest first.
func (r *ReservationRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.CreditReservation, error) {
	const query = `SELECT ` + reservationColumns + ` FROM credit_reservations WHERE status = ? AND created_at < ? ORDER BY created_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, string(models.ReservationPending), before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale reservations: %w", err)
	}
	defer rows.Close()

	var out []models.CreditReservation
	for rows.Next() {
		res, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
