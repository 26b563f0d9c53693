package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// MemoryChatTurnRepository keeps the chat log in process. It backs the
// memory graph backend, where no PostgreSQL database is configured.
type MemoryChatTurnRepository struct {
	mu    sync.Mutex
	turns []*models.ChatTurn
}

// NewMemoryChatTurnRepository creates an empty in-process chat log.
func NewMemoryChatTurnRepository() *MemoryChatTurnRepository {
	return &MemoryChatTurnRepository{}
}

var _ ChatTurnRepository = (*MemoryChatTurnRepository)(nil)

func (r *MemoryChatTurnRepository) Append(ctx context.Context, turn *models.ChatTurn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	stored := *turn
	r.mu.Lock()
	r.turns = append(r.turns, &stored)
	r.mu.Unlock()
	return nil
}

func (r *MemoryChatTurnRepository) ListBySession(ctx context.Context, username string, sessionUUID uuid.UUID, limit int) ([]*models.ChatTurn, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.ChatTurn
	for _, t := range r.turns {
		if t.SessionUUID == sessionUUID && t.Username == username {
			c := *t
			matched = append(matched, &c)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}
