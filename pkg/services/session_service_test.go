package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/auth"
	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/sessions"
)

func newSessionFixture(t *testing.T) (SessionService, *sessions.MemoryStore) {
	t.Helper()
	store := sessions.NewMemoryStore(10)
	t.Cleanup(func() { _ = store.Close() })
	return NewSessionService(store, time.Hour, zap.NewNop()), store
}

func TestGuard(t *testing.T) {
	svc, _ := newSessionFixture(t)
	session := uuid.New()

	username, err := svc.Guard(withIdentity("alice", session), session)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	_, err = svc.Guard(withIdentity("alice", session), uuid.New())
	var mismatch *apperrors.SessionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, session.String(), mismatch.TokenSession)

	_, err = svc.Guard(context.Background(), session)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	noSession := auth.WithClaims(context.Background(), &auth.Claims{Username: "alice"}, "tok")
	_, err = svc.Guard(noSession, session)
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestOpen(t *testing.T) {
	svc, store := newSessionFixture(t)
	session := uuid.New()

	opened, err := svc.Open(withIdentity("alice", session))
	require.NoError(t, err)
	assert.Equal(t, session, opened.UUID)
	assert.Equal(t, "alice", opened.Username)
	assert.Equal(t, "sub-alice", opened.Subject)
	assert.True(t, opened.ExpiresAt.After(time.Now()))

	cached, err := store.Get(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "alice", cached.Username)

	_, err = svc.Open(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestRefresh_ExtendsLiveSession(t *testing.T) {
	svc, store := newSessionFixture(t)
	session := uuid.New()

	_, err := svc.Open(withIdentity("alice", session))
	require.NoError(t, err)

	require.NoError(t, svc.Refresh(context.Background(), session))
	cached, err := store.Get(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, "alice", cached.Username)
	assert.Equal(t, 1, store.Len())
}

func TestRefresh_DoesNotRecreateLoggedOutSession(t *testing.T) {
	svc, store := newSessionFixture(t)
	session := uuid.New()
	ctx := withIdentity("alice", session)

	_, err := svc.Open(ctx)
	require.NoError(t, err)
	_, err = svc.Logout(ctx, session)
	require.NoError(t, err)

	require.NoError(t, svc.Refresh(context.Background(), session))
	_, err = store.Get(context.Background(), session)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestLogout(t *testing.T) {
	svc, store := newSessionFixture(t)
	session := uuid.New()
	ctx := withIdentity("alice", session)

	_, err := svc.Open(ctx)
	require.NoError(t, err)

	outcome, err := svc.Logout(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, models.LogoutRemoved, outcome)
	_, err = store.Get(context.Background(), session)
	assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))

	outcome, err = svc.Logout(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, models.LogoutNoSession, outcome)
}

func TestLogout_OtherSessionIsRejected(t *testing.T) {
	svc, store := newSessionFixture(t)
	victim := uuid.New()
	_, err := svc.Open(withIdentity("bob", victim))
	require.NoError(t, err)

	_, err = svc.Logout(withIdentity("alice", uuid.New()), victim)
	assert.ErrorIs(t, err, apperrors.ErrSessionMismatch)

	_, err = store.Get(context.Background(), victim)
	assert.NoError(t, err, "another user's session must survive")
}

func TestIsSessionError(t *testing.T) {
	assert.True(t, IsSessionError(&apperrors.SessionMismatchError{}))
	assert.True(t, IsSessionError(apperrors.ErrUnauthenticated))
	assert.True(t, IsSessionError(apperrors.ErrUserMismatch))
	assert.False(t, IsSessionError(apperrors.ErrNotFound))
}
