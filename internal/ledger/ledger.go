// Package ledger owns every mutation of a user's credit balance.
//
// A generation debits credits up front as a pending reservation, then either commits the
// reservation together with the artifact row or refunds it. Both settlements are conditional
// on the reservation still being pending, so each debit is settled exactly once.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/genstudio/internal/database"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/observability/metrics"
	"github.com/digkill/genstudio/internal/repository"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUserNotFound        = errors.New("user not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationSettled  = errors.New("reservation already settled")
)

type Ledger struct {
	db           *sql.DB
	users        *repository.UserRepository
	orders       *repository.OrderRepository
	reservations *repository.ReservationRepository
	artifacts    *repository.ArtifactRepository
	log          *slog.Logger
	now          func() time.Time
}

func New(db *sql.DB, log *slog.Logger) *Ledger {
	return &Ledger{
		db:           db,
		users:        repository.NewUserRepository(db),
		orders:       repository.NewOrderRepository(db),
		reservations: repository.NewReservationRepository(db),
		artifacts:    repository.NewArtifactRepository(db),
		log:          log,
		now:          time.Now,
	}
}

// Balance returns the current credit balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	u, err := l.users.FindByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, ErrUserNotFound
	}
	return u.Credits, nil
}

// Reserve debits amount from the user and records a pending reservation in one transaction.
func (l *Ledger) Reserve(ctx context.Context, userID string, amount int, kind models.ArtifactKind) (*models.CreditReservation, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("reserve: amount must be positive, got %d", amount)
	}
	res := &models.CreditReservation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		Status:    models.ReservationPending,
		CreatedAt: l.now(),
	}

	err := database.InTx(ctx, l.db, func(tx *sql.Tx) error {
		users := l.users.WithTx(tx)
		ok, err := users.DebitCredits(ctx, userID, amount)
		if err != nil {
			return err
		}
		if !ok {
			u, err := users.FindByID(ctx, userID)
			if err != nil {
				return err
			}
			if u == nil {
				return ErrUserNotFound
			}
			return ErrInsufficientCredits
		}
		return l.reservations.WithTx(tx).Create(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	metrics.LedgerCreditsTotal.WithLabelValues("reserved").Add(float64(amount))
	return res, nil
}

// CommitImage settles the reservation and stores the image. Both happen or neither does.
func (l *Ledger) CommitImage(ctx context.Context, reservationID string, img *models.Image) error {
	return l.commit(ctx, reservationID, func(tx *sql.Tx) error {
		return l.artifacts.WithTx(tx).CreateImage(ctx, img)
	})
}

// CommitSpeech settles the reservation and stores the speech. Both happen or neither does.
func (l *Ledger) CommitSpeech(ctx context.Context, reservationID string, sp *models.Speech) error {
	return l.commit(ctx, reservationID, func(tx *sql.Tx) error {
		return l.artifacts.WithTx(tx).CreateSpeech(ctx, sp)
	})
}

func (l *Ledger) commit(ctx context.Context, reservationID string, persist func(tx *sql.Tx) error) error {
	return database.InTx(ctx, l.db, func(tx *sql.Tx) error {
		ok, err := l.reservations.WithTx(tx).Settle(ctx, reservationID, models.ReservationCommitted, "", l.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrReservationSettled
		}
		return persist(tx)
	})
}

// Refund returns a pending reservation's credits. Refunding an already settled reservation
// is a no-op and reports false.
func (l *Ledger) Refund(ctx context.Context, reservationID, reason string) (bool, error) {
	var refunded bool
	var amount int
	err := database.InTx(ctx, l.db, func(tx *sql.Tx) error {
		reservations := l.reservations.WithTx(tx)
		res, err := reservations.FindByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if res == nil {
			return ErrReservationNotFound
		}
		ok, err := reservations.Settle(ctx, reservationID, models.ReservationRefunded, reason, l.now())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := l.users.WithTx(tx).AddCredits(ctx, res.UserID, res.Amount); err != nil {
			return err
		}
		refunded = true
		amount = res.Amount
		return nil
	})
	if err != nil {
		return false, err
	}
	if refunded {
		metrics.LedgerCreditsTotal.WithLabelValues("refunded").Add(float64(amount))
	}
	return refunded, nil
}

// Credit grants credits outside of a purchase, e.g. an operator adjustment.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit: amount must be positive, got %d", amount)
	}
	ok, err := l.users.AddCredits(ctx, userID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	metrics.LedgerCreditsTotal.WithLabelValues("granted").Add(float64(amount))
	return nil
}

// ApplyOrderPayment marks the order paid and credits the user in one transaction. It reports
// false without touching the balance when the order was already paid or canceled, which makes
// replayed gateway events harmless.
func (l *Ledger) ApplyOrderPayment(ctx context.Context, orderID, userID string, credits int, paidAt time.Time) (bool, error) {
	var applied bool
	err := database.InTx(ctx, l.db, func(tx *sql.Tx) error {
		ok, err := l.orders.WithTx(tx).MarkPaid(ctx, orderID, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		credited, err := l.users.WithTx(tx).AddCredits(ctx, userID, credits)
		if err != nil {
			return err
		}
		if !credited {
			return ErrUserNotFound
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		metrics.LedgerCreditsTotal.WithLabelValues("purchased").Add(float64(credits))
	}
	return applied, nil
}

// ReapStale refunds reservations that stayed pending longer than olderThan. These are debits
// whose request died between reserve and settle.
func (l *Ledger) ReapStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := l.reservations.ListStale(ctx, l.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, res := range stale {
		ok, err := l.Refund(ctx, res.ID, "reservation expired")
		if err != nil {
			l.log.Error("reap reservation", "reservation_id", res.ID, "user_id", res.UserID, "err", err)
			continue
		}
		if ok {
			reaped++
			l.log.Warn("refunded stale reservation", "reservation_id", res.ID, "user_id", res.UserID, "amount", res.Amount)
		}
	}
	return reaped, nil
}
