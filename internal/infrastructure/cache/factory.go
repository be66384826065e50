package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
)

// StoreFactory creates the token store and run lock based on configuration
type StoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	client                *redis.Client
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when Redis is unavailable.
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStoreFactory creates a new factory
func NewStoreFactory(cfg config.RedisConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect opens and pings the Redis client. It is a no-op when Redis is disabled.
func (f *StoreFactory) Connect(ctx context.Context) error {
	if !f.redisConfig.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", f.redisConfig.Host, f.redisConfig.Port),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !f.allowInMemoryFallback {
			return fmt.Errorf("Redis required but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory stores. "+
			"Run locks will not be shared between instances.",
			zap.Error(err),
		)
		return nil
	}
	f.client = client
	f.logger.Info("Using Redis for token store and run lock")
	return nil
}

// TokenStore returns the Redis token store, or nil when Redis is not connected
func (f *StoreFactory) TokenStore(sealer integration.ValueSealer) integration.TokenStore {
	if f.client == nil {
		return nil
	}
	return NewRedisTokenStore(f.client, sealer, f.redisConfig.KeyPrefix+"token:")
}

// RunLock returns the Redis run lock, or an in-memory lock when Redis is not connected
func (f *StoreFactory) RunLock() integration.RunLock {
	if f.client == nil {
		return NewInMemoryRunLock()
	}
	return NewRedisRunLock(f.client, f.redisConfig.KeyPrefix)
}

// Close closes the Redis client if one was opened
func (f *StoreFactory) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}
