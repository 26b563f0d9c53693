package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
)

// mockAuthService is a mock implementation of AuthService for testing.
type mockAuthService struct {
	claims            *Claims
	token             string
	validateErr       error
	requireSessionErr error
	validateMatchErr  error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	if m.validateErr != nil {
		return nil, "", m.validateErr
	}
	return m.claims, m.token, nil
}

func (m *mockAuthService) RequireSession(claims *Claims) error {
	return m.requireSessionErr
}

func (m *mockAuthService) ValidateSessionMatch(claims *Claims, sessionUUID string) error {
	return m.validateMatchErr
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestMiddleware_RequireAuth_Success(t *testing.T) {
	claims := &Claims{SessionID: "550e8400-e29b-41d4-a716-446655440000"}
	middleware := NewMiddleware(&mockAuthService{claims: claims, token: "test-token"}, zap.NewNop())

	var ctxClaims *Claims
	var ctxToken string
	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		ctxClaims, _ = GetClaims(r.Context())
		ctxToken, _ = GetToken(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ctxClaims != claims {
		t.Error("expected claims in context")
	}
	if ctxToken != "test-token" {
		t.Errorf("expected token 'test-token', got %q", ctxToken)
	}
}

func TestMiddleware_RequireAuth_Unauthorized(t *testing.T) {
	middleware := NewMiddleware(&mockAuthService{validateErr: ErrMissingAuthorization}, zap.NewNop())

	called := false
	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	if called {
		t.Error("handler should not be called")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body["error"] != "unauthorized" {
		t.Errorf("expected error 'unauthorized', got %q", body["error"])
	}
}

func TestMiddleware_RequireAuth_MissingSession(t *testing.T) {
	middleware := NewMiddleware(&mockAuthService{
		claims:            &Claims{},
		requireSessionErr: ErrMissingSession,
	}, zap.NewNop())

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestMiddleware_RequireSessionParam(t *testing.T) {
	claims := &Claims{SessionID: "550e8400-e29b-41d4-a716-446655440000"}

	tests := []struct {
		name       string
		url        string
		matchErr   error
		wantStatus int
	}{
		{"matching session", "/api/chat/history?session=550e8400-e29b-41d4-a716-446655440000", nil, http.StatusOK},
		{"no parameter", "/api/chat/history", nil, http.StatusOK},
		{"mismatch", "/api/chat/history?session=other", &apperrors.SessionMismatchError{RequestSession: "other"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := NewMiddleware(&mockAuthService{claims: claims, validateMatchErr: tt.matchErr}, zap.NewNop())
			handler := middleware.RequireSessionParam("session")(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestMiddleware_UnauthorizedForValidatorError(t *testing.T) {
	middleware := NewMiddleware(&mockAuthService{validateErr: errors.New("expired")}, zap.NewNop())
	rec := httptest.NewRecorder()
	middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {})(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}
