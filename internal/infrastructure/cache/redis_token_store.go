package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketsync/backend/internal/domain/integration"
)

// tokenRecord is the stored form of an access token; Value is sealed
type tokenRecord struct {
	Value     []byte    `json:"value"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisTokenStore implements TokenStore using Redis.
// Each key expires together with its token, so expired tokens clean themselves up.
type RedisTokenStore struct {
	client    redis.UniversalClient
	sealer    integration.ValueSealer
	keyPrefix string
	now       func() time.Time
}

// NewRedisTokenStore creates a token store. A nil sealer stores values in plain text.
func NewRedisTokenStore(client redis.UniversalClient, sealer integration.ValueSealer, keyPrefix string) *RedisTokenStore {
	if sealer == nil {
		sealer = integration.PlainSealer{}
	}
	if keyPrefix == "" {
		keyPrefix = "marketsync:token:"
	}
	return &RedisTokenStore{client: client, sealer: sealer, keyPrefix: keyPrefix, now: time.Now}
}

// Get returns the stored token for the marketplace
func (s *RedisTokenStore) Get(ctx context.Context, marketplace integration.MarketplaceID) (*integration.AccessToken, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+string(marketplace)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, integration.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	return decodeToken(marketplace, raw, s.sealer)
}

// Replace overwrites the stored token; SET is atomic
func (s *RedisTokenStore) Replace(ctx context.Context, token *integration.AccessToken) error {
	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, token.Marketplace)
	}
	raw, err := encodeToken(token, s.sealer)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.keyPrefix+string(token.Marketplace), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Delete discards the stored token
func (s *RedisTokenStore) Delete(ctx context.Context, marketplace integration.MarketplaceID) error {
	if err := s.client.Del(ctx, s.keyPrefix+string(marketplace)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func encodeToken(token *integration.AccessToken, sealer integration.ValueSealer) ([]byte, error) {
	sealed, err := sealer.Seal([]byte(token.Value))
	if err != nil {
		return nil, fmt.Errorf("seal token for %s: %w", token.Marketplace, err)
	}
	return json.Marshal(tokenRecord{Value: sealed, IssuedAt: token.IssuedAt, ExpiresAt: token.ExpiresAt})
}

func decodeToken(marketplace integration.MarketplaceID, raw []byte, sealer integration.ValueSealer) (*integration.AccessToken, error) {
	var rec tokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode token for %s: %w", marketplace, err)
	}
	value, err := sealer.Open(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("open token for %s: %w", marketplace, err)
	}
	return &integration.AccessToken{
		Marketplace: marketplace,
		Value:       string(value),
		IssuedAt:    rec.IssuedAt,
		ExpiresAt:   rec.ExpiresAt,
	}, nil
}

// Ensure RedisTokenStore implements TokenStore
var _ integration.TokenStore = (*RedisTokenStore)(nil)
