package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// RedisStore keeps sessions as JSON values under "session:{uuid}" with a
// native key TTL.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.Named("sessions-redis"),
	}
}

func (r *RedisStore) Put(ctx context.Context, s *models.Session, ttl time.Duration) error {
	stored := *s
	stored.ExpiresAt = time.Now().Add(ttl)

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, Key(s.UUID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	payload, err := r.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		r.logger.Warn("Discarding undecodable session entry",
			zap.String("session", id.String()),
			zap.Error(err))
		return nil, apperrors.ErrSessionNotFound
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := r.client.Del(ctx, Key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Touch(ctx context.Context, id uuid.UUID, ttl time.Duration) (bool, error) {
	s, err := r.Get(ctx, id)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.ExpiresAt = time.Now().Add(ttl)
	payload, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("failed to encode session: %w", err)
	}

	// XX: only rewrite a key that still exists.
	err = r.client.SetArgs(ctx, Key(id), payload, redis.SetArgs{Mode: "XX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to extend session: %w", err)
	}
	return true, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
