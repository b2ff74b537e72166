package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/payout-ledger/internal/auth"
	"github.com/josh-kwaku/payout-ledger/internal/handler"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
)

// Auth validates the bearer token and stores the caller's Actor on the
// context. The request logger picks up user_id and role.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				logging.FromContext(r.Context()).Debug("token rejected", "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			actor := claims.Actor()
			attrs := []any{"user_id", actor.ID, "role", actor.Role}
			if actor.MerchantID != nil {
				attrs = append(attrs, "merchant_id", *actor.MerchantID)
			}

			ctx := auth.ContextWithActor(r.Context(), actor)
			ctx = logging.With(ctx, attrs...)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			handler.RespondAppError(w, handler.ErrMissingToken, nil)
			return
		}
		if !actor.IsAdmin() {
			handler.RespondAppError(w, handler.ErrForbidden, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
