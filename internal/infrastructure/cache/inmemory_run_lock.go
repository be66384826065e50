package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/backend/internal/domain/integration"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryRunLock implements RunLock within one process.
// It is used when Redis is not configured, and in tests.
type InMemoryRunLock struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

// NewInMemoryRunLock creates an empty in-memory run lock
func NewInMemoryRunLock() *InMemoryRunLock {
	return &InMemoryRunLock{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

// TryAcquire takes key unless a live holder owns it
func (l *InMemoryRunLock) TryAcquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, held := l.locks[key]; held && now.Before(e.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release frees key if token still owns it
func (l *InMemoryRunLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, held := l.locks[key]; held && e.token == token {
		delete(l.locks, key)
	}
	return nil
}

// Ensure InMemoryRunLock implements RunLock
var _ integration.RunLock = (*InMemoryRunLock)(nil)
