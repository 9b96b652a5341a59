package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
	"github.com/jcmexdev/storefront/internal/pkg/interceptors/constants"
)

type userKey struct{}

// Identify resolves the X-User-ID header set by the upstream auth layer.
// Requests without the header pass through anonymously; an unknown id is
// rejected.
func Identify(users ports.UserDirectory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(constants.HeaderXUserID)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := users.FindUserByID(r.Context(), id)
			if errors.Is(err, domain.ErrUserNotFound) {
				deny(w, http.StatusUnauthorized, "unauthorized", "unknown user")
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "user lookup failed", "user_id", id, "error", err)
				deny(w, http.StatusInternalServerError, "internal_error", "internal error")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
		})
	}
}

// UserFrom returns the caller resolved by Identify, if any.
func UserFrom(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(*domain.User)
	return u, ok
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(r.Context()); !ok {
			deny(w, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		if !ok {
			deny(w, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}
		if !u.IsAdmin() {
			slog.WarnContext(r.Context(), "admin resource denied", "user_id", u.ID, "path", r.URL.Path)
			deny(w, http.StatusForbidden, "forbidden", "admin resource, access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
