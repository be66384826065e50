package cache

import (
	"context"
	"sync"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
)

// InMemoryTokenStore implements TokenStore in process memory.
// Records are kept in the same sealed encoding the Redis store uses.
type InMemoryTokenStore struct {
	mu      sync.RWMutex
	records map[integration.MarketplaceID][]byte
	sealer  integration.ValueSealer
	now     func() time.Time
}

// NewInMemoryTokenStore creates an empty store. A nil sealer stores values in plain text.
func NewInMemoryTokenStore(sealer integration.ValueSealer) *InMemoryTokenStore {
	if sealer == nil {
		sealer = integration.PlainSealer{}
	}
	return &InMemoryTokenStore{
		records: make(map[integration.MarketplaceID][]byte),
		sealer:  sealer,
		now:     time.Now,
	}
}

// Get returns the stored token for the marketplace
func (s *InMemoryTokenStore) Get(_ context.Context, marketplace integration.MarketplaceID) (*integration.AccessToken, error) {
	s.mu.RLock()
	raw, ok := s.records[marketplace]
	s.mu.RUnlock()
	if !ok {
		return nil, integration.ErrTokenNotFound
	}
	return decodeToken(marketplace, raw, s.sealer)
}

// Replace swaps the stored token and drops any that have expired
func (s *InMemoryTokenStore) Replace(_ context.Context, token *integration.AccessToken) error {
	raw, err := encodeToken(token, s.sealer)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[token.Marketplace] = raw
	now := s.now()
	for id, rec := range s.records {
		if t, err := decodeToken(id, rec, s.sealer); err == nil && t.IsExpired(now) {
			delete(s.records, id)
		}
	}
	return nil
}

// Delete discards the stored token
func (s *InMemoryTokenStore) Delete(_ context.Context, marketplace integration.MarketplaceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, marketplace)
	return nil
}

// Size returns the number of stored tokens (for testing/monitoring)
func (s *InMemoryTokenStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ensure InMemoryTokenStore implements TokenStore
var _ integration.TokenStore = (*InMemoryTokenStore)(nil)
