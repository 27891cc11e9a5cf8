package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/genstudio/internal/models"
)

type TokenRepository struct {
	db DBTX
}

func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) CreateVerification(ctx context.Context, t *models.EmailVerificationToken) error {
	const query = `INSERT INTO email_verification_tokens (token, user_id, expires_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, t.Token, t.UserID, t.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("insert verification token: %w", err)
	}
	return nil
}

func (r *TokenRepository) FindVerification(ctx context.Context, token string) (*models.EmailVerificationToken, error) {
	const query = `SELECT token, user_id, expires_at FROM email_verification_tokens WHERE token = ?`
	var t models.EmailVerificationToken
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&t.Token, &t.UserID, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan verification token: %w", err)
	}
	return &t, nil
}

func (r *TokenRepository) DeleteVerification(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM email_verification_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete verification token: %w", err)
	}
	return nil
}

// UpsertOAuthAccount stores the latest provider tokens for a linked account.
func (r *TokenRepository) UpsertOAuthAccount(ctx context.Context, a *models.OAuthAccount) error {
	const query = `
INSERT INTO oauth_accounts (provider, provider_user_id, user_id, access_token, refresh_token, expires_at)
VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)
ON DUPLICATE KEY UPDATE access_token = VALUES(access_token),
    refresh_token = COALESCE(VALUES(refresh_token), refresh_token),
    expires_at = VALUES(expires_at)`
	var expires any
	if a.ExpiresAt != nil {
		expires = a.ExpiresAt.UTC()
	}
	if _, err := r.db.ExecContext(ctx, query, a.Provider, a.ProviderUserID, a.UserID, a.AccessToken, a.RefreshToken, expires); err != nil {
		return fmt.Errorf("upsert oauth account: %w", err)
	}
	return nil
}
