package services

import (
	"context"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// mockTurnRepo records appended turns in memory.
type mockTurnRepo struct {
	mu        sync.Mutex
	turns     []*models.ChatTurn
	appendErr error
	listErr   error
}

func (m *mockTurnRepo) Append(ctx context.Context, turn *models.ChatTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	m.turns = append(m.turns, turn)
	return nil
}

func (m *mockTurnRepo) ListBySession(ctx context.Context, username string, sessionUUID uuid.UUID, limit int) ([]*models.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.ChatTurn
	for _, t := range m.turns {
		if t.Username == username && t.SessionUUID == sessionUUID {
			out = append(out, t)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockTurnRepo) snapshot() []*models.ChatTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.ChatTurn(nil), m.turns...)
}

// mockUsageRepo serves fixed persisted totals.
type mockUsageRepo struct {
	totals map[string]models.TokenTotals
	err    error
}

func (m *mockUsageRepo) SaveBatch(ctx context.Context, records []models.TokenUsageRecord) error {
	return nil
}

func (m *mockUsageRepo) TotalsBySource(ctx context.Context) (map[string]models.TokenTotals, error) {
	return m.totals, m.err
}

// withIdentity returns a context carrying claims for username and session.
func withIdentity(username string, session uuid.UUID) context.Context {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-" + username},
		SessionID:        session.String(),
		Username:         username,
	}
	return auth.WithClaims(context.Background(), claims, "test-token")
}
