package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON and YAML request bodies.
const maxBodyBytes = 10 << 20

// ParseSessionQuery reads and validates the session_uuid query parameter.
// Returns uuid.Nil and false after writing an error response.
func ParseSessionQuery(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("session_uuid")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeBadRequest(w, logger, "invalid_session_uuid", "session_uuid query parameter must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSONBody decodes a bounded JSON body into v. It writes a 400 and
// returns false when the body is malformed.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, logger, "invalid_request", fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}
