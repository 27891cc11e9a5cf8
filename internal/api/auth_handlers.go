package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/genstudio/internal/apperr"
	"github.com/digkill/genstudio/internal/auth"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/service"
)

const (
	stateCookie    = "oauth_state"
	verifierCookie = "oauth_verifier"
	oauthCookieTTL = 10 * time.Minute
	oauthPath      = "/api/auth/google"
)

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	if err := s.deps.Sessions.SetCookie(w, user.ID); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindUnexpected, "", err))
		return
	}
	s.writeJSON(w, status, user)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in service.SignUpInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.deps.Accounts.SignUp(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startSession(w, r, user, http.StatusCreated)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var in service.SignInInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.deps.Accounts.SignIn(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.startSession(w, r, user, http.StatusOK)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.deps.Sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Accounts.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (s *Server) setOAuthCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     oauthPath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Google.Enabled() {
		s.writeError(w, r, apperr.New(apperr.KindNotFound, "Google sign-in is not configured"))
		return
	}
	state, err := auth.RandomToken(16)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	verifier := auth.NewVerifier()
	s.setOAuthCookie(w, stateCookie, state, int(oauthCookieTTL.Seconds()))
	s.setOAuthCookie(w, verifierCookie, verifier, int(oauthCookieTTL.Seconds()))
	http.Redirect(w, r, s.deps.Google.AuthURL(state, verifier), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Google.Enabled() {
		s.writeError(w, r, apperr.New(apperr.KindNotFound, "Google sign-in is not configured"))
		return
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	savedState, stateErr := r.Cookie(stateCookie)
	savedVerifier, verifierErr := r.Cookie(verifierCookie)
	if code == "" || state == "" || stateErr != nil || verifierErr != nil || savedVerifier.Value == "" {
		s.writeError(w, r, apperr.New(apperr.KindValidation, "Invalid request"))
		return
	}
	if savedState.Value != state {
		s.writeError(w, r, apperr.New(apperr.KindValidation, "State does not match."))
		return
	}
	s.setOAuthCookie(w, stateCookie, "", -1)
	s.setOAuthCookie(w, verifierCookie, "", -1)

	profile, token, err := s.deps.Google.Exchange(r.Context(), code, savedVerifier.Value)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindUnauthenticated, "Failed to sign in with Google", err))
		return
	}
	identity := service.OAuthIdentity{
		Provider:       "google",
		ProviderUserID: profile.ID,
		Email:          profile.Email,
		EmailVerified:  profile.VerifiedEmail,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		identity.ExpiresAt = &expiry
	}
	user, err := s.deps.Accounts.OAuthLogin(r.Context(), identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Sessions.SetCookie(w, user.ID); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindUnexpected, "", err))
		return
	}
	http.Redirect(w, r, s.opts.BaseURL+"/", http.StatusFound)
}
