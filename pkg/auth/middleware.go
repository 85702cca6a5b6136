package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/polygate-dev/polygate/pkg/api"
)

// DefaultBypassPaths lists endpoints that skip authentication.
var DefaultBypassPaths = []string{"/healthz", "/metrics"}

type identityKey struct{}

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity, or nil when
// the request is unauthenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}

// Middleware enforces authentication on every request outside the bypass
// list. A nil authenticator disables enforcement entirely.
func Middleware(authn Authenticator, bypassPaths []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassPaths))
	for _, p := range bypassPaths {
		bypass[p] = true
	}

	return func(next http.Handler) http.Handler {
		if authn == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			id, err := authn.Authenticate(r)
			if err != nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", err.Error(),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(api.ErrorResponse{
					Error: api.NewInvalidRequestError("", "authentication required"),
				})
				return
			}

			slog.Debug("authentication succeeded",
				"subject", id.Subject,
				"path", r.URL.Path,
			)
			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), id)))
		})
	}
}
