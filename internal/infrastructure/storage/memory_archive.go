package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/marketsync/backend/internal/domain/integration"
)

// MemoryPayloadArchive keeps archived payloads in process memory.
// It is used when no object storage is configured for a single-node deployment.
type MemoryPayloadArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryPayloadArchive creates an empty in-memory archive
func NewMemoryPayloadArchive() *MemoryPayloadArchive {
	return &MemoryPayloadArchive{objects: make(map[string][]byte)}
}

var _ integration.PayloadArchive = (*MemoryPayloadArchive)(nil)

// Put stores a copy of payload under key
func (m *MemoryPayloadArchive) Put(_ context.Context, key string, payload []byte) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), payload...)
	return nil
}

// Get returns a copy of the payload stored under key
func (m *MemoryPayloadArchive) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of archived payloads
func (m *MemoryPayloadArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
