package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/genstudio/internal/apperr"
	"github.com/digkill/genstudio/internal/auth"
	"github.com/digkill/genstudio/internal/models"
)

type userHarness struct {
	db     *memDB
	mailer *recordingMailer
	gw     *fakeGateway
	svc    *UserService
}

func newUserHarness() *userHarness {
	h := &userHarness{db: newMemDB(), mailer: newRecordingMailer(), gw: &fakeGateway{}}
	h.svc = NewUserService(UserDeps{
		Users:     memUsers{h.db},
		Tokens:    memTokens{h.db},
		Hasher:    auth.NewPasswordHasher(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}),
		Mailer:    h.mailer,
		Customers: h.gw,
		Credits:   h.db,
	}, "https://app.example.com", discardLogger())
	return h
}

var aliceSignUp = SignUpInput{
	Username:        "alice",
	Email:           "Alice@Example.com",
	Password:        "s3cret-pass",
	ConfirmPassword: "s3cret-pass",
}

func TestSignUpCreatesUserAndSendsVerification(t *testing.T) {
	h := newUserHarness()

	user, err := h.svc.SignUp(context.Background(), aliceSignUp)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Zero(t, user.Credits)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	link := h.mailer.links["alice@example.com"]
	require.True(t, strings.HasPrefix(link, "https://app.example.com/verify-email/"))
	token := strings.TrimPrefix(link, "https://app.example.com/verify-email/")

	require.NoError(t, h.svc.VerifyEmail(context.Background(), token))
	assert.True(t, h.db.users[user.ID].EmailVerified)
	assert.Empty(t, h.db.tokens)

	err = h.svc.VerifyEmail(context.Background(), token)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSignUpRejectsDuplicatesAndMismatch(t *testing.T) {
	h := newUserHarness()
	_, err := h.svc.SignUp(context.Background(), aliceSignUp)
	require.NoError(t, err)

	_, err = h.svc.SignUp(context.Background(), aliceSignUp)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	in := aliceSignUp
	in.Username = "alice2"
	in.ConfirmPassword = "different"
	_, err = h.svc.SignUp(context.Background(), in)
	assert.Equal(t, "Passwords do not match", apperr.PublicMessage(err))
}

func TestSignUpWithoutEmailSkipsVerification(t *testing.T) {
	h := newUserHarness()
	in := aliceSignUp
	in.Email = ""

	_, err := h.svc.SignUp(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, h.mailer.links)
	assert.Empty(t, h.db.tokens)
}

func TestSignInByUsernameOrEmail(t *testing.T) {
	h := newUserHarness()
	created, err := h.svc.SignUp(context.Background(), aliceSignUp)
	require.NoError(t, err)

	user, err := h.svc.SignIn(context.Background(), SignInInput{Login: "alice", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	user, err = h.svc.SignIn(context.Background(), SignInInput{Login: "ALICE@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = h.svc.SignIn(context.Background(), SignInInput{Login: "alice", Password: "wrong-pass"})
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	_, err = h.svc.SignIn(context.Background(), SignInInput{Login: "nobody", Password: "s3cret-pass"})
	assert.Equal(t, "Invalid username or password", apperr.PublicMessage(err))
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	h := newUserHarness()
	h.db.addUser(models.User{ID: "u1", Username: "alice"})
	h.db.tokens["tok"] = models.EmailVerificationToken{Token: "tok", UserID: "u1", ExpiresAt: time.Now().Add(-time.Hour)}

	err := h.svc.VerifyEmail(context.Background(), "tok")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.False(t, h.db.users["u1"].EmailVerified)
	assert.Empty(t, h.db.tokens)
}

func TestOAuthLoginCreatesUserWithCustomerOnce(t *testing.T) {
	h := newUserHarness()
	id := OAuthIdentity{Provider: "google", ProviderUserID: "g-1", Email: "bob@example.com", EmailVerified: true, AccessToken: "at"}

	user, err := h.svc.OAuthLogin(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "g-1", user.ID)
	assert.Equal(t, "bob@example.com", user.Username)
	assert.True(t, user.CreatedViaOAuth)
	assert.Equal(t, "cus_g-1", user.StripeCustomerID)

	again, err := h.svc.OAuthLogin(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, 1, h.gw.customers)
	assert.Contains(t, h.db.oauth, "google:g-1")
}

func TestOAuthLoginRefusesPasswordAccountEmail(t *testing.T) {
	h := newUserHarness()
	_, err := h.svc.SignUp(context.Background(), aliceSignUp)
	require.NoError(t, err)

	_, err = h.svc.OAuthLogin(context.Background(), OAuthIdentity{Provider: "google", ProviderUserID: "g-2", Email: "alice@example.com"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, "User already exists. Please sign in.", apperr.PublicMessage(err))
	assert.Zero(t, h.gw.customers)
}

func TestGrantCredits(t *testing.T) {
	h := newUserHarness()
	h.db.addUser(models.User{ID: "u1", Username: "alice", Credits: 1})

	user, err := h.svc.GrantCredits(context.Background(), "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, 6, user.Credits)

	_, err = h.svc.GrantCredits(context.Background(), "ghost", 5)
	assert.Equal(t, apperr.KindUserNotFound, apperr.KindOf(err))

	_, err = h.svc.GrantCredits(context.Background(), "u1", 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
