package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource"
	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/services"
)

// IntrospectRequest for POST /api/schema/introspect
type IntrospectRequest struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// SchemaObjectsResponse for GET /api/schema/objects
type SchemaObjectsResponse struct {
	Name    string                     `json:"name"`
	Matches []models.EntityDescription `json:"matches"`
	Total   int                        `json:"total"`
}

// SchemaHandler handles schema import and lookup.
type SchemaHandler struct {
	importService services.SchemaImportService
	lookupService services.SchemaLookupService
	logger        *zap.Logger
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(
	importService services.SchemaImportService,
	lookupService services.SchemaLookupService,
	logger *zap.Logger,
) *SchemaHandler {
	return &SchemaHandler{
		importService: importService,
		lookupService: lookupService,
		logger:        logger,
	}
}

// RegisterRoutes registers the schema handler's routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/schema/import", authMiddleware.RequireAuth(h.Import))
	mux.HandleFunc("POST /api/schema/introspect", authMiddleware.RequireAuth(h.Introspect))
	mux.HandleFunc("GET /api/schema/sources", authMiddleware.RequireAuth(h.Sources))
	mux.HandleFunc("GET /api/schema/objects", authMiddleware.RequireAuth(h.Objects))
}

// Import handles POST /api/schema/import. The body is a JSON or YAML
// descriptor list, bare or under "objects".
func (h *SchemaHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeBadRequest(w, h.logger, "invalid_request", "Failed to read request body")
		return
	}

	descriptors, err := decodeImportBody(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeServiceError(w, h.logger, "Invalid import body", err)
		return
	}

	report, err := h.importService.Import(r.Context(), descriptors)
	if err != nil {
		writeServiceError(w, h.logger, "Schema import failed", err)
		return
	}
	h.writeReport(w, report)
}

// Introspect handles POST /api/schema/introspect
func (h *SchemaHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	var req IntrospectRequest
	if !decodeJSONBody(w, r, h.logger, &req) {
		return
	}
	if req.Type == "" {
		writeBadRequest(w, h.logger, "invalid_request", "type is required")
		return
	}

	report, err := h.importService.ImportFromSource(r.Context(), req.Type, req.Config)
	if err != nil {
		writeServiceError(w, h.logger, "Schema introspection failed", err)
		return
	}
	h.writeReport(w, report)
}

// Sources handles GET /api/schema/sources
func (h *SchemaHandler) Sources(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.logger, http.StatusOK, schemasource.RegisteredSources())
}

// Objects handles GET /api/schema/objects?name=
func (h *SchemaHandler) Objects(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if strings.TrimSpace(name) == "" {
		writeBadRequest(w, h.logger, "invalid_request", "name query parameter is required")
		return
	}

	matches, err := h.lookupService.Describe(r.Context(), name)
	if err != nil {
		writeServiceError(w, h.logger, "Schema lookup failed", err)
		return
	}

	writeOK(w, h.logger, http.StatusOK, SchemaObjectsResponse{Name: name, Matches: matches, Total: len(matches)})
}

// writeReport answers 200 when every item and edge went in, and 207 with
// the same report body otherwise.
func (h *SchemaHandler) writeReport(w http.ResponseWriter, report *models.ImportReport) {
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusMultiStatus
	}
	if err := WriteJSON(w, status, ApiResponse{Success: report.OK(), Data: report}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func decodeImportBody(contentType string, body []byte) ([]models.SchemaDescriptor, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if strings.Contains(mediaType, "yaml") {
		return services.DecodeDescriptors(body)
	}

	var file models.SchemaDescriptorFile
	if err := json.Unmarshal(body, &file); err == nil && len(file.Objects) > 0 {
		return file.Objects, nil
	}
	return services.DecodeDescriptors(body)
}
