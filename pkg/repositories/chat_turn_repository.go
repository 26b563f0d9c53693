package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-graph/pkg/database"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// ChatTurnRepository provides access to the append-only chat log.
type ChatTurnRepository interface {
	Append(ctx context.Context, turn *models.ChatTurn) error
	ListBySession(ctx context.Context, username string, sessionUUID uuid.UUID, limit int) ([]*models.ChatTurn, error)
}

type chatTurnRepository struct {
	db *database.DB
}

// NewChatTurnRepository creates a new ChatTurnRepository.
func NewChatTurnRepository(db *database.DB) ChatTurnRepository {
	return &chatTurnRepository{db: db}
}

var _ ChatTurnRepository = (*chatTurnRepository)(nil)

func (r *chatTurnRepository) Append(ctx context.Context, turn *models.ChatTurn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_turns (id, session_uuid, username, sender, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID, turn.SessionUUID, turn.Username, string(turn.Sender), turn.Message, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append chat turn: %w", err)
	}
	return nil
}

func (r *chatTurnRepository) ListBySession(ctx context.Context, username string, sessionUUID uuid.UUID, limit int) ([]*models.ChatTurn, error) {
	if limit <= 0 {
		limit = 100
	}

	// Latest turns, returned oldest first.
	rows, err := r.db.Query(ctx, `
		SELECT id, session_uuid, username, sender, message, created_at
		FROM (
			SELECT seq, id, session_uuid, username, sender, message, created_at
			FROM chat_turns
			WHERE session_uuid = $1 AND username = $2
			ORDER BY seq DESC
			LIMIT $3
		) recent
		ORDER BY seq ASC`, sessionUUID, username, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.ChatTurn
	for rows.Next() {
		var (
			t      models.ChatTurn
			sender string
		)
		if err := rows.Scan(&t.ID, &t.SessionUUID, &t.Username, &sender, &t.Message, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat turn: %w", err)
		}
		t.Sender = models.ChatSender(sender)
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat turns: %w", err)
	}
	return turns, nil
}
