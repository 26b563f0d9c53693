// Package auth validates the bearer tokens that bind a caller to a chat
// session. Tokens are JWTs carrying the session UUID in the "sid" claim.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims is the token payload. RegisteredClaims carries sub, iss and exp;
// SessionID is the session UUID the token is bound to.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid,omitempty"`
	Username  string `json:"preferred_username,omitempty"`
}

// UserName returns the username claim, falling back to the subject.
func (c *Claims) UserName() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// SessionUUID parses the bound session UUID.
func (c *Claims) SessionUUID() (uuid.UUID, error) {
	if c.SessionID == "" {
		return uuid.Nil, ErrMissingSession
	}
	id, err := uuid.Parse(c.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id in token: %w", err)
	}
	return id, nil
}

// GetClaims retrieves JWT claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// WithClaims returns a context carrying claims and the raw token.
func WithClaims(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return context.WithValue(ctx, TokenKey, token)
}
