package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetUsernameFromContext returns the caller's username, or "" when the
// request is not authenticated.
func GetUsernameFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.UserName()
}

// GetSessionFromContext returns the session UUID bound to the caller's token.
func GetSessionFromContext(ctx context.Context) (uuid.UUID, bool) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return uuid.Nil, false
	}
	id, err := claims.SessionUUID()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// RequireIdentityFromContext returns the username and bound session, or an
// error when either is missing.
func RequireIdentityFromContext(ctx context.Context) (string, uuid.UUID, error) {
	username := GetUsernameFromContext(ctx)
	if username == "" {
		return "", uuid.Nil, fmt.Errorf("authentication required: no user in context")
	}
	session, ok := GetSessionFromContext(ctx)
	if !ok {
		return "", uuid.Nil, fmt.Errorf("authentication required: %w", ErrMissingSession)
	}
	return username, session, nil
}
