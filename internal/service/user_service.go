package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/genstudio/internal/apperr"
	"github.com/digkill/genstudio/internal/auth"
	"github.com/digkill/genstudio/internal/ledger"
	"github.com/digkill/genstudio/internal/models"
)

const verificationTTL = 24 * time.Hour

type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	MarkEmailVerified(ctx context.Context, userID string) error
}

type TokenStore interface {
	CreateVerification(ctx context.Context, t *models.EmailVerificationToken) error
	FindVerification(ctx context.Context, token string) (*models.EmailVerificationToken, error)
	DeleteVerification(ctx context.Context, token string) error
	UpsertOAuthAccount(ctx context.Context, a *models.OAuthAccount) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

type VerificationSender interface {
	SendVerification(ctx context.Context, to, link string) error
}

type CustomerCreator interface {
	CreateCustomer(ctx context.Context, userID, email, name string) (string, error)
}

type CreditGranter interface {
	Credit(ctx context.Context, userID string, amount int) error
}

// OAuthIdentity is what a provider callback tells us about the signed-in account.
type OAuthIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	EmailVerified  bool
	AccessToken    string
	RefreshToken   string
	ExpiresAt      *time.Time
}

type UserDeps struct {
	Users     UserStore
	Tokens    TokenStore
	Hasher    PasswordHasher
	Mailer    VerificationSender
	Customers CustomerCreator
	Credits   CreditGranter
	Validator *Validator
}

type UserService struct {
	deps    UserDeps
	baseURL string
	log     *slog.Logger
	now     func() time.Time
}

func NewUserService(deps UserDeps, baseURL string, log *slog.Logger) *UserService {
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	return &UserService{deps: deps, baseURL: baseURL, log: log, now: time.Now}
}

var errBadLogin = apperr.New(apperr.KindUnauthenticated, "Invalid username or password")

func (s *UserService) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.deps.Validator.Validate(in); err != nil {
		return nil, err
	}

	existing, err := s.deps.Users.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if existing != nil {
		return nil, apperr.New(apperr.KindConflict, "User already exists")
	}
	if in.Email != "" {
		existing, err = s.deps.Users.FindByEmail(ctx, in.Email)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
		}
		if existing != nil {
			return nil, apperr.New(apperr.KindConflict, "User already exists")
		}
	}

	hash, err := s.deps.Hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.deps.Users.Create(ctx, user); err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	s.log.Info("user signed up", "user_id", user.ID)

	if user.Email != "" {
		s.sendVerification(ctx, user)
	}
	return user, nil
}

func (s *UserService) sendVerification(ctx context.Context, user *models.User) {
	token, err := auth.RandomToken(32)
	if err != nil {
		s.log.Error("verification token", "user_id", user.ID, "err", err)
		return
	}
	rec := &models.EmailVerificationToken{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: s.now().UTC().Add(verificationTTL),
	}
	if err := s.deps.Tokens.CreateVerification(ctx, rec); err != nil {
		s.log.Error("store verification token", "user_id", user.ID, "err", err)
		return
	}
	link := s.baseURL + "/verify-email/" + token
	if err := s.deps.Mailer.SendVerification(ctx, user.Email, link); err != nil {
		s.log.Warn("send verification email", "user_id", user.ID, "err", err)
	}
}

// SignIn checks a password login. Login may be the username or the email address.
func (s *UserService) SignIn(ctx context.Context, in SignInInput) (*models.User, error) {
	in.Login = strings.TrimSpace(in.Login)
	if err := s.deps.Validator.Validate(in); err != nil {
		return nil, err
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(in.Login, "@") {
		user, err = s.deps.Users.FindByEmail(ctx, strings.ToLower(in.Login))
	} else {
		user, err = s.deps.Users.FindByUsername(ctx, in.Login)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, errBadLogin
	}
	if !s.deps.Hasher.Verify(in.Password, user.PasswordHash) {
		return nil, errBadLogin
	}
	return user, nil
}

func (s *UserService) VerifyEmail(ctx context.Context, token string) error {
	rec, err := s.deps.Tokens.FindVerification(ctx, token)
	if err != nil {
		return apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if rec == nil {
		return apperr.New(apperr.KindNotFound, "Invalid or expired verification link")
	}
	if s.now().After(rec.ExpiresAt) {
		if err := s.deps.Tokens.DeleteVerification(ctx, token); err != nil {
			s.log.Warn("delete expired verification token", "err", err)
		}
		return apperr.New(apperr.KindValidation, "Verification link expired")
	}
	if err := s.deps.Users.MarkEmailVerified(ctx, rec.UserID); err != nil {
		return apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if err := s.deps.Tokens.DeleteVerification(ctx, token); err != nil {
		s.log.Warn("delete verification token", "err", err)
	}
	s.log.Info("email verified", "user_id", rec.UserID)
	return nil
}

// OAuthLogin signs in a provider account, creating the user and their gateway customer on
// first login. An email already registered with a password is not taken over.
func (s *UserService) OAuthLogin(ctx context.Context, id OAuthIdentity) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if id.ProviderUserID == "" || email == "" {
		return nil, apperr.New(apperr.KindValidation, "Invalid request")
	}

	byEmail, err := s.deps.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if byEmail != nil && !byEmail.CreatedViaOAuth {
		return nil, apperr.New(apperr.KindConflict, "User already exists. Please sign in.")
	}

	user, err := s.deps.Users.FindByID(ctx, id.ProviderUserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if user == nil {
		customerID, err := s.deps.Customers.CreateCustomer(ctx, id.ProviderUserID, email, email)
		if err != nil {
			s.log.Error("create stripe customer for oauth user", "provider_user_id", id.ProviderUserID, "err", err)
			return nil, apperr.Wrap(apperr.KindUnexpected, "Failed to create a new Stripe customer.", err)
		}
		now := s.now().UTC()
		user = &models.User{
			ID:               id.ProviderUserID,
			Username:         email,
			Email:            email,
			EmailVerified:    id.EmailVerified,
			CreatedViaOAuth:  true,
			StripeCustomerID: customerID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.deps.Users.Create(ctx, user); err != nil {
			s.log.Error("create oauth user", "provider_user_id", id.ProviderUserID, "stripe_customer_id", customerID, "err", err)
			return nil, apperr.Wrap(apperr.KindUnexpected, "Failed to create a new user. Please try again.", err)
		}
		s.log.Info("oauth user created", "user_id", user.ID, "provider", id.Provider)
	}

	if err := s.deps.Tokens.UpsertOAuthAccount(ctx, &models.OAuthAccount{
		Provider:       id.Provider,
		ProviderUserID: id.ProviderUserID,
		UserID:         user.ID,
		AccessToken:    id.AccessToken,
		RefreshToken:   id.RefreshToken,
		ExpiresAt:      id.ExpiresAt,
	}); err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.deps.Users.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if user == nil {
		return nil, apperr.New(apperr.KindUserNotFound, "User not found")
	}
	return user, nil
}

// GrantCredits adds credits outside of a purchase.
func (s *UserService) GrantCredits(ctx context.Context, userID string, amount int) (*models.User, error) {
	if amount <= 0 {
		return nil, apperr.New(apperr.KindValidation, "amount must be positive")
	}
	if err := s.deps.Credits.Credit(ctx, userID, amount); err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, apperr.Wrap(apperr.KindUserNotFound, "User not found", err)
		}
		return nil, apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	s.log.Info("credits granted", "user_id", userID, "amount", amount)
	return s.GetByID(ctx, userID)
}
