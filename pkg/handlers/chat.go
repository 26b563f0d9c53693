package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/services"
)

// ChatHistoryResponse for GET /api/chat/history
type ChatHistoryResponse struct {
	Turns []*models.ChatTurn `json:"turns"`
	Total int                `json:"total"`
}

// ChatHandler handles chat requests.
type ChatHandler struct {
	chatService services.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/chat", authMiddleware.RequireAuth(h.Chat))
	mux.HandleFunc("GET /api/chat/history",
		authMiddleware.RequireSessionParam("session_uuid")(h.History))
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !decodeJSONBody(w, r, h.logger, &req) {
		return
	}

	answer, err := h.chatService.HandleChat(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "Chat request rejected", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, answer); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// History handles GET /api/chat/history?session_uuid=&limit=
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionUUID, ok := ParseSessionQuery(w, r, h.logger)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, h.logger, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	turns, err := h.chatService.History(r.Context(), sessionUUID, limit)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to read chat history", err)
		return
	}
	if turns == nil {
		turns = []*models.ChatTurn{}
	}

	writeOK(w, h.logger, http.StatusOK, ChatHistoryResponse{Turns: turns, Total: len(turns)})
}
