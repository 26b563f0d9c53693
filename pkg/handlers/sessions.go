package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/services"
)

// LogoutRequest for POST /api/sessions/logout
type LogoutRequest struct {
	SessionUUID uuid.UUID `json:"session_uuid"`
}

// LogoutResponse reports whether a cache entry was removed.
type LogoutResponse struct {
	SessionUUID uuid.UUID            `json:"session_uuid"`
	Outcome     models.LogoutOutcome `json:"outcome"`
}

// SessionHandler opens and closes chat sessions.
type SessionHandler struct {
	sessionService services.SessionService
	logger         *zap.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessionService services.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         logger,
	}
}

// RegisterRoutes registers the session handler's routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/sessions", authMiddleware.RequireAuth(h.Open))
	mux.HandleFunc("POST /api/sessions/logout", authMiddleware.RequireAuth(h.Logout))
}

// Open handles POST /api/sessions
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.Open(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Failed to open session", err)
		return
	}
	writeOK(w, h.logger, http.StatusCreated, session)
}

// Logout handles POST /api/sessions/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !decodeJSONBody(w, r, h.logger, &req) {
		return
	}
	if req.SessionUUID == uuid.Nil {
		writeBadRequest(w, h.logger, "invalid_session_uuid", "session_uuid is required")
		return
	}

	outcome, err := h.sessionService.Logout(r.Context(), req.SessionUUID)
	if err != nil {
		writeServiceError(w, h.logger, "Logout rejected", err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, LogoutResponse{SessionUUID: req.SessionUUID, Outcome: outcome})
}
