package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
)

// ApiResponse wraps successful payloads.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusFor maps a service error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var precondition *apperrors.ExportPreconditionError
	switch {
	case errors.As(err, &precondition):
		return http.StatusPreconditionFailed, precondition.Code
	case errors.Is(err, apperrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperrors.ErrSessionMismatch):
		return http.StatusForbidden, "session_mismatch"
	case errors.Is(err, apperrors.ErrUserMismatch):
		return http.StatusForbidden, "user_mismatch"
	case errors.Is(err, apperrors.ErrInvalidRequest),
		errors.Is(err, apperrors.ErrInvalidName),
		errors.Is(err, apperrors.ErrInvalidContainment),
		errors.Is(err, apperrors.ErrUnsupportedSourceType):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperrors.ErrGraphIntegrity):
		return http.StatusUnprocessableEntity, "graph_integrity"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrEmptyGraph):
		return http.StatusConflict, "empty_graph"
	case errors.Is(err, apperrors.ErrExportBusy):
		return http.StatusTooManyRequests, "export_busy"
	case errors.Is(err, apperrors.ErrGraphUnavailable):
		return http.StatusServiceUnavailable, "graph_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError writes the response for a service error. Server-side
// failures are logged at ERROR, client errors at DEBUG.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug(msg, zap.Int("status", status), zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, err.Error()); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeBadRequest(w http.ResponseWriter, logger *zap.Logger, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
