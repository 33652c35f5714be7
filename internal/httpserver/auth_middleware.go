package httpserver

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"chatcore/internal/security"
)

type contextKey string

const identityContextKey contextKey = "identity"

// IdentityRecorder records identities that reach the REST surface.
type IdentityRecorder interface {
	Remember(ctx context.Context, id security.Identity) error
}

// WithIdentity returns a new context carrying the verified caller.
func WithIdentity(ctx context.Context, id security.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// CurrentIdentity extracts the verified caller from the request context.
func CurrentIdentity(r *http.Request) (security.Identity, bool) {
	id, ok := r.Context().Value(identityContextKey).(security.Identity)
	return id, ok && id.UserID != ""
}

// AuthMiddleware validates the Bearer token and attaches the identity to the context.
func AuthMiddleware(tokens security.Verifier, users IdentityRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := security.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or invalid Authorization header"})
				return
			}

			id, err := tokens.Verify(tokenStr)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
				return
			}

			if users != nil {
				if err := users.Remember(r.Context(), id); err != nil {
					hlog.FromRequest(r).Warn().Err(err).Str("user_id", id.UserID).Msg("record identity")
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
