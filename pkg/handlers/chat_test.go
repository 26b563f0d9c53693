package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

const testToken = "test-token"

var testSession = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

// stubValidator accepts testToken and binds it to testSession.
type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*auth.Claims, error) {
	if token != testToken {
		return nil, errors.New("invalid token")
	}
	return &auth.Claims{SessionID: testSession.String(), Username: "alice"}, nil
}

func (stubValidator) Close() {}

func testAuthMiddleware() *auth.Middleware {
	return auth.NewMiddleware(auth.NewAuthService(stubValidator{}, zap.NewNop()), zap.NewNop())
}

func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func newChatMux(svc *mockChatService) *http.ServeMux {
	mux := http.NewServeMux()
	NewChatHandler(svc, zap.NewNop()).RegisterRoutes(mux, testAuthMiddleware())
	return mux
}

func TestChatHandler_Chat(t *testing.T) {
	svc := &mockChatService{answer: &models.ChatAnswer{
		Answer:     "The employees table.",
		Candidates: map[string]string{"Employees": "employees"},
		Matched:    []string{"employees"},
	}}
	mux := newChatMux(svc)

	body := `{"username":"alice","session_uuid":"` + testSession.String() + `","query":"where are employees?"}`
	rec := serve(mux, authedRequest(http.MethodPost, "/api/chat", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var answer models.ChatAnswer
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&answer))
	assert.Equal(t, "The employees table.", answer.Answer)
	assert.Equal(t, []string{"employees"}, answer.Matched)

	require.NotNil(t, svc.lastRequest)
	assert.Equal(t, testSession, svc.lastRequest.SessionUUID)
	assert.Equal(t, "where are employees?", svc.lastRequest.Query)
}

func TestChatHandler_Chat_RequiresToken(t *testing.T) {
	svc := &mockChatService{}
	mux := newChatMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{}`))
	rec := serve(mux, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, svc.lastRequest)
}

func TestChatHandler_Chat_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `{"query":`, nil, http.StatusBadRequest},
		{"session mismatch", `{"query":"q"}`, &apperrors.SessionMismatchError{}, http.StatusForbidden},
		{"invalid request", `{"query":""}`, apperrors.ErrInvalidRequest, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newChatMux(&mockChatService{err: tt.err})
			rec := serve(mux, authedRequest(http.MethodPost, "/api/chat", tt.body))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestChatHandler_History(t *testing.T) {
	svc := &mockChatService{turns: []*models.ChatTurn{
		{SessionUUID: testSession, Sender: models.ChatSenderUser, Message: "q"},
		{SessionUUID: testSession, Sender: models.ChatSenderAssistant, Message: "a"},
	}}
	mux := newChatMux(svc)

	rec := serve(mux, authedRequest(http.MethodGet, "/api/chat/history?session_uuid="+testSession.String()+"&limit=5", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool                `json:"success"`
		Data    ChatHistoryResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, models.ChatSenderUser, resp.Data.Turns[0].Sender)
	assert.Equal(t, 5, svc.lastLimit)
}

func TestChatHandler_History_OtherSessionForbidden(t *testing.T) {
	mux := newChatMux(&mockChatService{})

	rec := serve(mux, authedRequest(http.MethodGet, "/api/chat/history?session_uuid="+uuid.New().String(), ""))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChatHandler_History_BadParams(t *testing.T) {
	mux := newChatMux(&mockChatService{})

	rec := serve(mux, authedRequest(http.MethodGet, "/api/chat/history", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, authedRequest(http.MethodGet, "/api/chat/history?session_uuid="+testSession.String()+"&limit=-1", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandler_History_EmptyIsArray(t *testing.T) {
	mux := newChatMux(&mockChatService{})

	rec := serve(mux, authedRequest(http.MethodGet, "/api/chat/history?session_uuid="+testSession.String(), ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"turns":[]`)
}
