package mcpauth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/auth"
)

type mockAuthService struct {
	claims      *auth.Claims
	token       string
	validateErr error
	sessionErr  error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if m.validateErr != nil {
		return nil, "", m.validateErr
	}
	return m.claims, m.token, nil
}

func (m *mockAuthService) RequireSession(claims *auth.Claims) error {
	return m.sessionErr
}

func (m *mockAuthService) ValidateSessionMatch(claims *auth.Claims, sessionUUID string) error {
	return nil
}

func TestRequireAuth_Success(t *testing.T) {
	claims := &auth.Claims{SessionID: "5f1c2a9e-8b7d-4e6f-9a0b-1c2d3e4f5a6b", Username: "alice"}
	mw := NewMiddleware(&mockAuthService{claims: claims, token: "tok"}, zap.NewNop())

	var gotUser string
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.GetUsernameFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if gotUser != "alice" {
		t.Errorf("expected claims in context, got user %q", gotUser)
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	mw := NewMiddleware(&mockAuthService{validateErr: errors.New("bad token")}, zap.NewNop())
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if h := rec.Header().Get("WWW-Authenticate"); !strings.Contains(h, `error="invalid_token"`) {
		t.Errorf("unexpected WWW-Authenticate header: %s", h)
	}
}

func TestRequireAuth_MissingSession(t *testing.T) {
	mw := NewMiddleware(&mockAuthService{claims: &auth.Claims{}, sessionErr: auth.ErrMissingSession}, zap.NewNop())
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if h := rec.Header().Get("WWW-Authenticate"); !strings.Contains(h, "not bound to a session") {
		t.Errorf("unexpected WWW-Authenticate header: %s", h)
	}
}
