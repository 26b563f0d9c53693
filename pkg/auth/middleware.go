package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireAuth validates the JWT and requires a bound session.
// Sets claims and token in context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.unauthorized(w, "Authentication required")
			return
		}

		if err := m.authService.RequireSession(claims); err != nil {
			m.badRequest(w, "Missing or invalid session id in token")
			return
		}

		next(w, r.WithContext(WithClaims(r.Context(), claims, token)))
	}
}

// RequireSessionParam is RequireAuth plus a check that the session UUID in
// the named query parameter matches the token. A missing parameter passes.
func (m *Middleware) RequireSessionParam(param string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := GetClaims(r.Context())
			if requested := r.URL.Query().Get(param); requested != "" {
				if err := m.authService.ValidateSessionMatch(claims, requested); err != nil {
					m.forbidden(w, "Session id does not match token")
					return
				}
			}
			next(w, r)
		})
	}
}

func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	m.writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

func (m *Middleware) badRequest(w http.ResponseWriter, message string) {
	m.writeError(w, http.StatusBadRequest, "bad_request", message)
}

func (m *Middleware) forbidden(w http.ResponseWriter, message string) {
	m.writeError(w, http.StatusForbidden, "forbidden", message)
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
