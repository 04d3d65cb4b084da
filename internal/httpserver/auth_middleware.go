package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"caterchat/internal/domain"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// TokenResolver turns a bearer token into an active user.
type TokenResolver interface {
	UserFromToken(ctx context.Context, token string) (*domain.User, error)
}

// WithUser returns a new context carrying the current user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if v := r.Context().Value(userContextKey); v != nil {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// AuthMiddleware validates the Bearer token and attaches the user to the context.
func AuthMiddleware(auth TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid Authorization header"})
				return
			}

			user, err := auth.UserFromToken(r.Context(), strings.TrimSpace(header[7:]))
			if err != nil {
				if !errors.Is(err, domain.ErrUnauthorized) {
					log.WithError(err).Warn("auth: token lookup failed")
				}
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireStaff rejects requests from non-staff users.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		if !user.Role.IsStaff() {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "staff only"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
