package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
)

// CookieName is the cookie browser clients send the token in.
const CookieName = "schema_graph_jwt"

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrMissingSession       = errors.New("missing session id in token")
)

// AuthService extracts and checks the caller's token.
type AuthService interface {
	// ValidateRequest extracts and validates a JWT from the request. It
	// checks the CookieName cookie first, then a Bearer Authorization header.
	ValidateRequest(r *http.Request) (*Claims, string, error)

	// RequireSession checks that the claims carry a valid session UUID.
	RequireSession(claims *Claims) error

	// ValidateSessionMatch checks that a session UUID supplied by the caller
	// is the one bound to the token.
	ValidateSessionMatch(claims *Claims, sessionUUID string) error
}

type authService struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(validator TokenValidator, logger *zap.Logger) AuthService {
	return &authService{
		validator: validator,
		logger:    logger.Named("auth"),
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	var tokenString, tokenSource string

	if cookie, err := r.Cookie(CookieName); err == nil {
		tokenString = cookie.Value
		tokenSource = "cookie"
	} else {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.logger.Debug("No JWT found in request",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method))
			return nil, "", ErrMissingAuthorization
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || scheme != "Bearer" || token == "" {
			s.logger.Debug("Invalid Authorization header format", zap.String("path", r.URL.Path))
			return nil, "", ErrInvalidAuthFormat
		}
		tokenString = token
		tokenSource = "header"
	}

	claims, err := s.validator.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("token_source", tokenSource))
		return nil, "", err
	}

	return claims, tokenString, nil
}

func (s *authService) RequireSession(claims *Claims) error {
	_, err := claims.SessionUUID()
	return err
}

func (s *authService) ValidateSessionMatch(claims *Claims, sessionUUID string) error {
	if sessionUUID != claims.SessionID {
		s.logger.Warn("Session mismatch",
			zap.String("request_session", sessionUUID),
			zap.String("token_session", claims.SessionID),
			zap.String("subject", claims.Subject))
		return &apperrors.SessionMismatchError{
			RequestSession: sessionUUID,
			TokenSession:   claims.SessionID,
		}
	}
	return nil
}

var _ AuthService = (*authService)(nil)
