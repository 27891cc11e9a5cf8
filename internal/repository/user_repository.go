package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/genstudio/internal/models"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy bound to tx.
func (r *UserRepository) WithTx(tx DBTX) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `id, username, COALESCE(email, ''), COALESCE(password_hash, ''), email_verified, created_via_oauth, credits, COALESCE(stripe_customer_id, ''), created_at, updated_at`

func (r *UserRepository) scanOne(ctx context.Context, where string, arg any) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	row := r.db.QueryRowContext(ctx, query, arg)
	var u models.User
	var verified, oauth int
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &verified, &oauth, &u.Credits, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.EmailVerified = verified != 0
	u.CreatedViaOAuth = oauth != 0
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.scanOne(ctx, "id = ?", id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.scanOne(ctx, "email = ?", email)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.scanOne(ctx, "username = ?", username)
}

func (r *UserRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	return r.scanOne(ctx, "stripe_customer_id = ?", customerID)
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	const query = `
INSERT INTO users (id, username, email, password_hash, email_verified, created_via_oauth, credits, stripe_customer_id)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''))`
	if _, err := r.db.ExecContext(ctx, query, u.ID, u.Username, u.Email, u.PasswordHash, boolToInt(u.EmailVerified), boolToInt(u.CreatedViaOAuth), u.Credits, u.StripeCustomerID); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SetStripeCustomerID binds a gateway customer to a user that has none yet. It reports false
// when the user already has a customer, in which case the stored one wins.
func (r *UserRepository) SetStripeCustomerID(ctx context.Context, userID, customerID string) (bool, error) {
	const query = `UPDATE users SET stripe_customer_id = ?, updated_at = NOW() WHERE id = ? AND stripe_customer_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, customerID, userID)
	if err != nil {
		return false, fmt.Errorf("set stripe customer: %w", err)
	}
	return affectedOne(res, "set stripe customer")
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	const query = `UPDATE users SET email_verified = 1, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// DebitCredits subtracts amount only if the balance covers it. The check and the write are one
// statement, so concurrent debits serialise on the row lock and the balance never goes negative.
func (r *UserRepository) DebitCredits(ctx context.Context, userID string, amount int) (bool, error) {
	const query = `UPDATE users SET credits = credits - ?, updated_at = NOW() WHERE id = ? AND credits >= ?`
	res, err := r.db.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return false, fmt.Errorf("debit credits: %w", err)
	}
	return affectedOne(res, "debit credits")
}

func (r *UserRepository) AddCredits(ctx context.Context, userID string, amount int) (bool, error) {
	const query = `UPDATE users SET credits = credits + ?, updated_at = NOW() WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return false, fmt.Errorf("add credits: %w", err)
	}
	return affectedOne(res, "add credits")
}
