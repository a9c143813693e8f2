// Package auth validates that inbound RTDN pushes really come from the
// Pub/Sub push subscription: each push carries an OIDC token signed by
// Google for the subscription's service account.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/heimdall/internal/domain"
)

// GoogleVerifier validates Google-signed OIDC bearer tokens against the
// published signing keys.
type GoogleVerifier struct {
	audience            string
	serviceAccountEmail string
	keys                *KeyCache
	parser              *jwt.Parser
}

// pushClaims are the OIDC claims Pub/Sub attaches to push requests.
type pushClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// NewGoogleVerifier creates a verifier. audience must match the configured
// push endpoint URL; serviceAccountEmail may be empty to skip the identity
// check (local development).
func NewGoogleVerifier(audience, serviceAccountEmail string, keys *KeyCache) *GoogleVerifier {
	if keys == nil {
		keys = NewKeyCache(KeyCacheConfig{})
	}
	return &GoogleVerifier{
		audience:            audience,
		serviceAccountEmail: serviceAccountEmail,
		keys:                keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
	}
}

// VerifyToken checks signature, audience, issuer and signer identity of a
// raw bearer token. Returns an EUNAUTHORIZED domain error on any failure.
func (v *GoogleVerifier) VerifyToken(ctx context.Context, raw string) error {
	claims := &pushClaims{}

	_, err := v.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no key id")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return domain.Unauthorized("rtdn.auth", "invalid bearer token")
	}

	issuer, err := claims.GetIssuer()
	if err != nil || (issuer != "accounts.google.com" && issuer != "https://accounts.google.com") {
		return domain.Unauthorized("rtdn.auth", "unexpected token issuer")
	}

	if v.serviceAccountEmail != "" {
		if !claims.EmailVerified || claims.Email != v.serviceAccountEmail {
			return domain.Unauthorized("rtdn.auth", "token signed for an unexpected identity")
		}
	}

	return nil
}
