package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/services"
)

// UsageHandler reports token consumption.
type UsageHandler struct {
	usageService services.TokenUsageService
	logger       *zap.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(usageService services.TokenUsageService, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
		logger:       logger,
	}
}

// RegisterRoutes registers the usage handler's routes on the given mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/usage/tokens", authMiddleware.RequireAuth(h.Tokens))
}

// Tokens handles GET /api/usage/tokens
func (h *UsageHandler) Tokens(w http.ResponseWriter, r *http.Request) {
	report, err := h.usageService.Report(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Failed to read token usage", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, report)
}
