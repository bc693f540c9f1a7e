package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/storefront/service/internal/auth"
	"github.com/storefront/service/internal/response"
)

// Authenticator verifies a bearer token and returns the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

// RequireAuth returns middleware that verifies a Bearer token with the identity provider
// and injects the resulting auth.Identity into the request context.
func RequireAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "unauthorized: no token provided")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
				response.Unauthorized(w, "unauthorized: invalid authorization header format")
				return
			}

			id, err := authenticator.Authenticate(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				log.Ctx(r.Context()).Warn().Err(err).Str("component", "auth").Msg("token verification failed")
				response.Unauthorized(w, "unauthorized: token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects requests whose identity does not hold role. It must run after RequireAuth.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				response.Unauthorized(w, "unauthorized")
				return
			}
			if id.Role != role {
				response.Forbidden(w, "forbidden: "+string(role)+" access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
