package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/marketsync/backend/internal/domain/integration"
)

// releaseScript deletes the key only if it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock implements RunLock using Redis SETNX with a TTL.
// Suitable for deployments where several instances run the orchestrator.
type RedisRunLock struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisRunLock creates a run lock with an existing Redis client
func NewRedisRunLock(client redis.UniversalClient, keyPrefix string) *RedisRunLock {
	if keyPrefix == "" {
		keyPrefix = "marketsync:"
	}
	return &RedisRunLock{client: client, keyPrefix: keyPrefix}
}

// TryAcquire sets key to a fresh token if nobody holds it
func (l *RedisRunLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes key if token still owns it. An expired lock is not an error.
func (l *RedisRunLock) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// Ensure RedisRunLock implements RunLock
var _ integration.RunLock = (*RedisRunLock)(nil)
