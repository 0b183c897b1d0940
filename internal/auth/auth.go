// Package auth issues and validates the bearer tokens used by operators
// when approving gates and submitting runs. Tokens are JWTs signed with a
// shared secret; the subject claim carries the operator identity that
// gates check against their approver lists.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"conveyor/internal/common/errors"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated operator extracted from a token.
type Identity struct {
	Subject string
	Roles   []string
}

// Claims is the JWT payload for operator tokens.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Auth mints and validates operator tokens.
type Auth struct {
	secret []byte
	ttl    time.Duration
}

// New creates an Auth with the given signing secret. ttl bounds token
// lifetime; zero defaults to 24 hours.
func New(secret string, ttl time.Duration) (*Auth, error) {
	if secret == "" {
		return nil, errors.ConfigError("JWT secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{secret: []byte(secret), ttl: ttl}, nil
}

// Mint issues a signed token for the operator.
func (a *Auth) Mint(subject string, roles []string) (string, error) {
	if subject == "" {
		return "", errors.ValidationError("token subject is required")
	}

	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate parses and verifies a token, returning the operator identity.
func (a *Auth) Validate(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.AuthError("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.AuthError("invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, errors.AuthError("token has no subject")
	}

	return &Identity{Subject: claims.Subject, Roles: claims.Roles}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// identity in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "authentication required"}`))
			return
		}

		identity, err := a.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "invalid token"}`))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// WithIdentity stores an identity in the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// FromContext returns the authenticated identity, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok
}
