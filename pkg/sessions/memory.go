package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

const defaultMemoryMaxSize = 10000

// MemoryStore is an in-process Store. When full, the least recently used
// entry is evicted.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*memoryEntry
	maxSize int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type memoryEntry struct {
	session    models.Session
	lastAccess time.Time
}

// NewMemoryStore creates a store holding at most maxSize sessions.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = defaultMemoryMaxSize
	}
	return &MemoryStore{
		entries: make(map[uuid.UUID]*memoryEntry),
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

func (m *MemoryStore) Put(ctx context.Context, s *models.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[s.UUID]; !exists && len(m.entries) >= m.maxSize {
		m.evictLRU()
	}

	stored := *s
	stored.ExpiresAt = now.Add(ttl)
	m.entries[s.UUID] = &memoryEntry{session: stored, lastAccess: now}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(id)
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	entry.lastAccess = m.now()
	s := entry.session
	return &s, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live(id)
	delete(m.entries, id)
	return ok, nil
}

func (m *MemoryStore) Touch(ctx context.Context, id uuid.UUID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(id)
	if !ok {
		return false, nil
	}
	now := m.now()
	entry.session.ExpiresAt = now.Add(ttl)
	entry.lastAccess = now
	return true, nil
}

// live returns the entry if present and unexpired. Caller holds the lock.
func (m *MemoryStore) live(id uuid.UUID) (*memoryEntry, bool) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	if !m.now().Before(entry.session.ExpiresAt) {
		return nil, false
	}
	return entry, true
}

// evictLRU removes the least recently used entry. Caller holds the lock.
func (m *MemoryStore) evictLRU() {
	var oldest uuid.UUID
	var oldestTime time.Time
	found := false

	for id, entry := range m.entries {
		if !found || entry.lastAccess.Before(oldestTime) {
			oldest = id
			oldestTime = entry.lastAccess
			found = true
		}
	}

	if found {
		delete(m.entries, oldest)
	}
}

// Cleanup removes expired entries.
func (m *MemoryStore) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, entry := range m.entries {
		if !now.Before(entry.session.ExpiresAt) {
			delete(m.entries, id)
		}
	}
}

// Len returns the number of entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// StartCleanup runs Cleanup every interval until Close.
func (m *MemoryStore) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Cleanup()
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

var _ Store = (*MemoryStore)(nil)
