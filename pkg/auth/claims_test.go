package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestClaims_UserNameFallsBackToSubject(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	if c.UserName() != "user-1" {
		t.Errorf("expected subject fallback, got %q", c.UserName())
	}
	c.Username = "alice"
	if c.UserName() != "alice" {
		t.Errorf("expected 'alice', got %q", c.UserName())
	}
}

func TestClaims_SessionUUID(t *testing.T) {
	c := &Claims{}
	if _, err := c.SessionUUID(); !errors.Is(err, ErrMissingSession) {
		t.Errorf("expected ErrMissingSession, got %v", err)
	}

	c.SessionID = "not-a-uuid"
	if _, err := c.SessionUUID(); err == nil {
		t.Error("expected parse error")
	}

	c.SessionID = "550e8400-e29b-41d4-a716-446655440000"
	id, err := c.SessionUUID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != c.SessionID {
		t.Errorf("expected %s, got %s", c.SessionID, id)
	}
}

func TestWithClaims_RoundTrip(t *testing.T) {
	claims := &Claims{SessionID: "s"}
	ctx := WithClaims(context.Background(), claims, "raw")

	got, ok := GetClaims(ctx)
	if !ok || got != claims {
		t.Error("expected claims in context")
	}
	token, ok := GetToken(ctx)
	if !ok || token != "raw" {
		t.Errorf("expected token 'raw', got %q", token)
	}

	if _, ok := GetClaims(context.Background()); ok {
		t.Error("expected no claims in empty context")
	}
}
