package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/marketsync/backend/internal/domain/integration"
)

// CredentialManagerConfig holds token refresh settings
type CredentialManagerConfig struct {
	// RefreshMargin is how long before expiry a cached token is refreshed
	RefreshMargin time.Duration
	// MaxAttempts bounds token exchange attempts per refresh
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts
	MaxBackoff time.Duration
}

// DefaultCredentialManagerConfig returns the default refresh settings
func DefaultCredentialManagerConfig() CredentialManagerConfig {
	return CredentialManagerConfig{
		RefreshMargin:  integration.DefaultRefreshMargin,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// TokenRefreshRecorder receives one call per completed token exchange
type TokenRefreshRecorder interface {
	RecordTokenRefresh(ctx context.Context, marketplace integration.MarketplaceID, attempts int, err error)
}

// CredentialManager acquires, caches and refreshes marketplace access tokens.
// Concurrent callers for one marketplace share a single in-flight refresh.
type CredentialManager struct {
	store    integration.TokenStore
	config   CredentialManagerConfig
	logger   *zap.Logger
	recorder TokenRefreshRecorder

	mu      sync.RWMutex
	issuers map[integration.MarketplaceID]integration.TokenIssuer

	flights singleflight.Group
	now     func() time.Time
}

// NewCredentialManager creates a credential manager backed by store
func NewCredentialManager(store integration.TokenStore, config CredentialManagerConfig, logger *zap.Logger) *CredentialManager {
	defaults := DefaultCredentialManagerConfig()
	if config.RefreshMargin <= 0 {
		config.RefreshMargin = defaults.RefreshMargin
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	return &CredentialManager{
		store:   store,
		config:  config,
		logger:  logger,
		issuers: make(map[integration.MarketplaceID]integration.TokenIssuer),
		now:     time.Now,
	}
}

// RegisterIssuer sets the token issuer for a marketplace
func (m *CredentialManager) RegisterIssuer(marketplace integration.MarketplaceID, issuer integration.TokenIssuer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issuers[marketplace] = issuer
}

// SetRefreshRecorder sets the optional refresh recorder
func (m *CredentialManager) SetRefreshRecorder(recorder TokenRefreshRecorder) {
	m.recorder = recorder
}

// GetToken returns a token that stays valid for at least the refresh margin.
// Issuer rejections surface as *integration.AuthError and are not retried.
func (m *CredentialManager) GetToken(ctx context.Context, marketplace integration.MarketplaceID) (*integration.AccessToken, error) {
	if token, ok := m.cached(ctx, marketplace); ok {
		return token, nil
	}

	ch := m.flights.DoChan(string(marketplace), func() (any, error) {
		// The flight outlives any single caller's cancellation
		flightCtx := context.WithoutCancel(ctx)
		if token, ok := m.cached(flightCtx, marketplace); ok {
			return token, nil
		}
		return m.refresh(flightCtx, marketplace)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*integration.AccessToken), nil
	}
}

// Invalidate discards the cached token so the next GetToken exchanges a new one
func (m *CredentialManager) Invalidate(ctx context.Context, marketplace integration.MarketplaceID) error {
	m.logger.Info("Invalidating marketplace token", zap.String("marketplace", marketplace.String()))
	return m.store.Delete(ctx, marketplace)
}

func (m *CredentialManager) cached(ctx context.Context, marketplace integration.MarketplaceID) (*integration.AccessToken, bool) {
	token, err := m.store.Get(ctx, marketplace)
	if err != nil {
		if !errors.Is(err, integration.ErrTokenNotFound) {
			m.logger.Warn("Failed to read cached token, refreshing",
				zap.String("marketplace", marketplace.String()),
				zap.Error(err),
			)
		}
		return nil, false
	}
	return token, token.IsUsable(m.now(), m.config.RefreshMargin)
}

func (m *CredentialManager) refresh(ctx context.Context, marketplace integration.MarketplaceID) (*integration.AccessToken, error) {
	m.mu.RLock()
	issuer, ok := m.issuers[marketplace]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no token issuer for %s", integration.ErrMarketplaceNotRegistered, marketplace)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.config.InitialBackoff
	policy.MaxInterval = m.config.MaxBackoff
	policy.MaxElapsedTime = 0

	var (
		token    *integration.AccessToken
		attempts int
	)
	operation := func() error {
		attempts++
		t, err := issuer.ExchangeToken(ctx)
		if err != nil {
			if !integration.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			m.logger.Warn("Token exchange failed, will retry",
				zap.String("marketplace", marketplace.String()),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return err
		}
		token = t
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(m.config.MaxAttempts-1)), ctx))
	if m.recorder != nil {
		m.recorder.RecordTokenRefresh(ctx, marketplace, attempts, err)
	}
	if err != nil {
		m.logger.Error("Token exchange gave up",
			zap.String("marketplace", marketplace.String()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return nil, err
	}

	token.Marketplace = marketplace
	if token.IssuedAt.IsZero() {
		token.IssuedAt = m.now()
	}
	if err := m.store.Replace(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store refreshed token: %w", err)
	}

	m.logger.Info("Marketplace token refreshed",
		zap.String("marketplace", marketplace.String()),
		zap.Time("expires_at", token.ExpiresAt),
		zap.Int("attempts", attempts),
	)
	return token, nil
}

var _ integration.TokenSource = (*CredentialManager)(nil)
