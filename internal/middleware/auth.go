package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dukerupert/heimdall/internal/domain"
)

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) error
}

// RequireGoogleAuth creates middleware that validates the OIDC bearer token
// Pub/Sub attaches to push deliveries. When disabled is true the check is
// skipped entirely (local development against the Pub/Sub emulator, which
// does not sign pushes).
func RequireGoogleAuth(verifier TokenVerifier, disabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if disabled {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				respondWithError(w, r, domain.Unauthorized("rtdn.auth", "missing bearer token"))
				return
			}

			if err := verifier.VerifyToken(r.Context(), token); err != nil {
				respondWithError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
