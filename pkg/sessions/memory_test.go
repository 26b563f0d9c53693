package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newSession(name string) *models.Session {
	return &models.Session{UUID: uuid.New(), Username: name}
}

func newClockedStore(maxSize int) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	s := NewMemoryStore(maxSize)
	s.now = clock.now
	return s, clock
}

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore(10)
	sess := newSession("alice")

	require.NoError(t, s.Put(ctx, sess, time.Minute))

	got, err := s.Get(ctx, sess.UUID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, clock.t.Add(time.Minute), got.ExpiresAt)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore(10)
	sess := newSession("alice")
	require.NoError(t, s.Put(ctx, sess, time.Minute))

	clock.advance(time.Minute)

	_, err := s.Get(ctx, sess.UUID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	removed, err := s.Delete(ctx, sess.UUID)
	require.NoError(t, err)
	assert.False(t, removed, "an expired session does not count as removed")
}

func TestMemoryStore_Touch(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore(10)
	sess := newSession("alice")
	require.NoError(t, s.Put(ctx, sess, time.Minute))

	clock.advance(50 * time.Second)
	ok, err := s.Touch(ctx, sess.UUID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.advance(50 * time.Second)
	_, err = s.Get(ctx, sess.UUID)
	assert.NoError(t, err, "touch extended the expiry")

	ok, err = s.Touch(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore(10)
	sess := newSession("alice")
	require.NoError(t, s.Put(ctx, sess, time.Minute))

	removed, err := s.Delete(ctx, sess.UUID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, sess.UUID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore(2)
	a, b, c := newSession("a"), newSession("b"), newSession("c")

	require.NoError(t, s.Put(ctx, a, time.Hour))
	clock.advance(time.Second)
	require.NoError(t, s.Put(ctx, b, time.Hour))
	clock.advance(time.Second)
	_, err := s.Get(ctx, a.UUID)
	require.NoError(t, err)
	clock.advance(time.Second)
	require.NoError(t, s.Put(ctx, c, time.Hour))

	assert.Equal(t, 2, s.Len())
	_, err = s.Get(ctx, b.UUID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	_, err = s.Get(ctx, a.UUID)
	assert.NoError(t, err)
}

func TestMemoryStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore(10)
	require.NoError(t, s.Put(ctx, newSession("short"), time.Second))
	require.NoError(t, s.Put(ctx, newSession("long"), time.Hour))

	clock.advance(time.Minute)
	s.Cleanup()

	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_PutReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newClockedStore(10)
	sess := newSession("alice")
	require.NoError(t, s.Put(ctx, sess, time.Minute))

	sess.Username = "mallory"
	got, err := s.Get(ctx, sess.UUID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestKey(t *testing.T) {
	id := uuid.MustParse("7f0c2a8e-4b1d-4c8e-9a55-0e3c1f2b6d71")
	assert.Equal(t, "session:7f0c2a8e-4b1d-4c8e-9a55-0e3c1f2b6d71", Key(id))
}
