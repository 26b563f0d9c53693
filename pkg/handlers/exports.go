package handlers

import (
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/services"
)

// ExportHandler triggers exports and serves finished artifacts.
type ExportHandler struct {
	exportService services.ExportService
	logger        *zap.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(exportService services.ExportService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{
		exportService: exportService,
		logger:        logger,
	}
}

// RegisterRoutes registers the export handler's routes on the given mux.
func (h *ExportHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/exports/tabular", authMiddleware.RequireAuth(h.Tabular))
	mux.HandleFunc("POST /api/exports/diagram", authMiddleware.RequireAuth(h.Diagram))
	mux.HandleFunc("GET /api/exports/{file}", authMiddleware.RequireAuth(h.Download))
}

// Tabular handles POST /api/exports/tabular
func (h *ExportHandler) Tabular(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.exportService.ExportTabular(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Tabular export failed", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, artifact)
}

// Diagram handles POST /api/exports/diagram
func (h *ExportHandler) Diagram(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.exportService.ExportDiagram(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Diagram export failed", err)
		return
	}
	writeOK(w, h.logger, http.StatusOK, artifact)
}

// Download handles GET /api/exports/{file}
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	path, err := h.exportService.ArtifactPath(name)
	if err != nil {
		writeServiceError(w, h.logger, "Artifact not available", err)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
