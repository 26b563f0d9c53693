package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/sessions"
)

// SessionService binds requests to the session carried in the caller's token
// and manages the session cache.
type SessionService interface {
	// Guard checks that sessionUUID is the session bound to the caller's
	// token and returns the caller's username. It has no side effects.
	Guard(ctx context.Context, sessionUUID uuid.UUID) (string, error)
	// Open registers the token's session in the cache.
	Open(ctx context.Context) (*models.Session, error)
	// Refresh extends a live session. A missing session stays missing;
	// only Open registers one.
	Refresh(ctx context.Context, sessionUUID uuid.UUID) error
	// Logout removes the session from the cache. Chat history is kept.
	Logout(ctx context.Context, sessionUUID uuid.UUID) (models.LogoutOutcome, error)
}

type sessionService struct {
	store  sessions.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionService creates a SessionService. ttl is the cache lifetime of a
// session since its last use.
func NewSessionService(store sessions.Store, ttl time.Duration, logger *zap.Logger) SessionService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionService{
		store:  store,
		ttl:    ttl,
		logger: logger.Named("session-service"),
	}
}

var _ SessionService = (*sessionService)(nil)

func (s *sessionService) Guard(ctx context.Context, sessionUUID uuid.UUID) (string, error) {
	claims, ok := auth.GetClaims(ctx)
	if !ok || claims == nil {
		return "", apperrors.ErrUnauthenticated
	}

	tokenSession, err := claims.SessionUUID()
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrUnauthenticated, err)
	}

	if tokenSession != sessionUUID {
		s.logger.Warn("Rejected request for another session",
			zap.String("request_session", sessionUUID.String()),
			zap.String("token_session", tokenSession.String()),
			zap.String("username", claims.UserName()))
		return "", &apperrors.SessionMismatchError{
			RequestSession: sessionUUID.String(),
			TokenSession:   tokenSession.String(),
		}
	}

	return claims.UserName(), nil
}

func (s *sessionService) Open(ctx context.Context) (*models.Session, error) {
	claims, ok := auth.GetClaims(ctx)
	if !ok || claims == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	id, err := claims.SessionUUID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthenticated, err)
	}

	session := &models.Session{
		UUID:      id,
		Username:  claims.UserName(),
		Subject:   claims.Subject,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Put(ctx, session, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	stored, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read back session: %w", err)
	}

	s.logger.Info("Session opened",
		zap.String("session", id.String()),
		zap.String("username", session.Username))
	return stored, nil
}

func (s *sessionService) Refresh(ctx context.Context, sessionUUID uuid.UUID) error {
	touched, err := s.store.Touch(ctx, sessionUUID, s.ttl)
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	if !touched {
		s.logger.Debug("Session not cached, nothing to refresh", zap.String("session", sessionUUID.String()))
	}
	return nil
}

func (s *sessionService) Logout(ctx context.Context, sessionUUID uuid.UUID) (models.LogoutOutcome, error) {
	if _, err := s.Guard(ctx, sessionUUID); err != nil {
		return "", err
	}

	removed, err := s.store.Delete(ctx, sessionUUID)
	if err != nil {
		return "", fmt.Errorf("failed to remove session: %w", err)
	}

	if !removed {
		s.logger.Debug("Logout for unknown session", zap.String("session", sessionUUID.String()))
		return models.LogoutNoSession, nil
	}

	s.logger.Info("Session removed", zap.String("session", sessionUUID.String()))
	return models.LogoutRemoved, nil
}

// IsSessionError reports whether err is a session guard rejection.
func IsSessionError(err error) bool {
	return errors.Is(err, apperrors.ErrSessionMismatch) ||
		errors.Is(err, apperrors.ErrUnauthenticated) ||
		errors.Is(err, apperrors.ErrUserMismatch)
}
