package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/utils"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Middleware rejects requests without a valid bearer token and stores the
// token's subject as the caller's user id.
func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", err.Error()))
				return
			}

			userID, err := v.Verify(r.Context(), rawToken)
			if err != nil {
				log.Warn("AUTH", fmt.Sprintf("Rejected token on %s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// RequireSecret guards machine callbacks with a shared secret header. An
// empty secret rejects every request.
func RequireSecret(header, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "invalid callback secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	if uid, ok := ctx.Value(userIDKey).(string); ok {
		return uid
	}
	return ""
}
