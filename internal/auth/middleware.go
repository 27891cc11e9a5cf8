package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/digkill/genstudio/internal/models"
)

type userContextKey struct{}

// UserLoader resolves a session subject to a user.
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*models.User)
	return u, ok && u != nil
}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// Resolve attaches the signed-in user, if any, to the request context. Requests without a
// valid session pass through anonymously.
func Resolve(sessions *Sessions, users UserLoader, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := sessions.FromRequest(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			u, err := users.FindByID(r.Context(), userID)
			if err != nil {
				log.Error("resolve session user", "user_id", userID, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if u == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// Require rejects requests without a resolved user.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "Unauthenticated user. Please sign in.",
				"code":  "UNAUTHENTICATED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
