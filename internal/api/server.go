// Package api exposes the generation, billing and account operations over JSON HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/digkill/genstudio/internal/auth"
	"github.com/digkill/genstudio/internal/billing"
	"github.com/digkill/genstudio/internal/models"
	obsmw "github.com/digkill/genstudio/internal/observability/middleware"
	"github.com/digkill/genstudio/internal/service"
)

type Generator interface {
	GenerateImage(ctx context.Context, user *models.User, fingerprint string, in service.ImageInput) (*models.Image, error)
	GenerateSpeech(ctx context.Context, user *models.User, fingerprint string, in service.SpeechInput) (*models.Speech, error)
}

type Fulfiller interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type Checkout interface {
	ListPlans() []billing.PlanInfo
	Checkout(ctx context.Context, user *models.User, plan string) (string, error)
}

type Accounts interface {
	SignUp(ctx context.Context, in service.SignUpInput) (*models.User, error)
	SignIn(ctx context.Context, in service.SignInInput) (*models.User, error)
	VerifyEmail(ctx context.Context, token string) error
	OAuthLogin(ctx context.Context, id service.OAuthIdentity) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GrantCredits(ctx context.Context, userID string, amount int) (*models.User, error)
}

type Gallery interface {
	PublicRecent(ctx context.Context) ([]models.Image, error)
	Dashboard(ctx context.Context, user *models.User) (*service.Dashboard, error)
	SetImageVisibility(ctx context.Context, user *models.User, imageID string, public bool) error
}

type OrderLookup interface {
	FindByID(ctx context.Context, id string) (*models.Order, error)
}

type ReservationReaper interface {
	RunOnce(ctx context.Context) int
}

type Options struct {
	Addr          string
	BaseURL       string
	CORSOrigins   []string
	IPRateLimit   int
	WriteTimeout  time.Duration
	AdminUsername string
	AdminPassword string
	SecureCookies bool
}

type Deps struct {
	Sessions    *auth.Sessions
	Google      *auth.GoogleProvider
	Users       auth.UserLoader
	Accounts    Accounts
	Generator   Generator
	Fulfillment Fulfiller
	Checkout    Checkout
	Gallery     Gallery
	Orders      OrderLookup
	Reaper      ReservationReaper
}

type Server struct {
	opts   Options
	deps   Deps
	log    *slog.Logger
	router *chi.Mux
}

func NewServer(opts Options, deps Deps, log *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obsmw.WithMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if opts.IPRateLimit > 0 {
		r.Use(httprate.LimitByIP(opts.IPRateLimit, time.Minute))
	}

	s := &Server{opts: opts, deps: deps, log: log, router: r}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/payment/webhook", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(auth.Resolve(deps.Sessions, deps.Users, log))

			r.Get("/gallery", s.handleGallery)
			r.Get("/plans", s.handlePlans)

			// Generation admits by fingerprint before it checks identity, so anonymous
			// callers are rate limited like everyone else.
			r.Post("/images", s.handleGenerateImage)
			r.Post("/speeches", s.handleGenerateSpeech)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/sign-up", s.handleSignUp)
				r.Post("/sign-in", s.handleSignIn)
				r.Post("/sign-out", s.handleSignOut)
				r.Post("/verify-email/{token}", s.handleVerifyEmail)
				r.Get("/google", s.handleGoogleStart)
				r.Get("/google/callback", s.handleGoogleCallback)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.Require)
				r.Get("/me", s.handleMe)
				r.Get("/dashboard", s.handleDashboard)
				r.Patch("/images/{id}/visibility", s.handleImageVisibility)
				r.Post("/checkout", s.handleCheckout)
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.basicAuthMiddleware())
		r.Get("/users/{id}", s.handleAdminUser)
		r.Post("/users/{id}/credits", s.handleAdminGrantCredits)
		r.Get("/orders/{id}", s.handleAdminOrder)
		r.Post("/reservations/reap", s.handleAdminReap)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	writeTimeout := s.opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.opts.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !credentialsMatch(user, pass, s.opts.AdminUsername, s.opts.AdminPassword) {
				w.Header().Set("WWW-Authenticate", `Basic realm="genstudio"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// credentialsMatch compares both fields in constant time and never accepts an empty password.
func credentialsMatch(user, pass, wantUser, wantPass string) bool {
	if wantPass == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(wantPass)) == 1
	return userOK && passOK
}
