// Package sessions holds the TTL-bounded cache of chat sessions. A session
// exists from open until logout or expiry; nothing here outlives a restart
// unless the Redis store is configured.
package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Store caches session metadata keyed by session UUID.
type Store interface {
	// Put stores s, replacing any previous entry, and expires it after ttl.
	Put(ctx context.Context, s *models.Session, ttl time.Duration) error
	// Get returns the live session or apperrors.ErrSessionNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// Delete removes the session and reports whether it existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// Touch extends a live session's expiry and reports whether it existed.
	Touch(ctx context.Context, id uuid.UUID, ttl time.Duration) (bool, error)
	Close() error
}

// Key is the cache key for a session.
func Key(id uuid.UUID) string {
	return "session:" + id.String()
}
