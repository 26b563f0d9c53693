package repositories

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

func TestMemoryChatTurnRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChatTurnRepository()
	session := uuid.New()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, &models.ChatTurn{
			SessionUUID: session,
			Username:    "alice",
			Sender:      models.ChatSenderUser,
			Message:     fmt.Sprintf("q%d", i),
		}))
	}
	require.NoError(t, repo.Append(ctx, &models.ChatTurn{SessionUUID: session, Username: "bob", Message: "other user"}))
	require.NoError(t, repo.Append(ctx, &models.ChatTurn{SessionUUID: uuid.New(), Username: "alice", Message: "other session"}))

	all, err := repo.ListBySession(ctx, "alice", session, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "q0", all[0].Message)
	assert.NotEqual(t, uuid.Nil, all[0].ID)
	assert.False(t, all[0].CreatedAt.IsZero())

	latest, err := repo.ListBySession(ctx, "alice", session, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "q3", latest[0].Message)
	assert.Equal(t, "q4", latest[1].Message)
}
