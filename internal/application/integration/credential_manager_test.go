package integration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

func fastCredentialConfig() CredentialManagerConfig {
	return CredentialManagerConfig{
		RefreshMargin:  5 * time.Minute,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

// blockingIssuer counts exchanges and holds each one until released
type blockingIssuer struct {
	calls   atomic.Int32
	release chan struct{}
}

func (i *blockingIssuer) ExchangeToken(ctx context.Context) (*integration.AccessToken, error) {
	i.calls.Add(1)
	select {
	case <-i.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &integration.AccessToken{Value: "fresh", ExpiresAt: time.Now().Add(24 * time.Hour)}, nil
}

func TestCredentialManager_ReturnsCachedToken(t *testing.T) {
	store := newMemoryTokenStore()
	require.NoError(t, store.Replace(context.Background(), &integration.AccessToken{
		Marketplace: testMarketplace, Value: "cached", ExpiresAt: time.Now().Add(time.Hour),
	}))
	issuer := new(MockTokenIssuer)

	m := NewCredentialManager(store, fastCredentialConfig(), zap.NewNop())
	m.RegisterIssuer(testMarketplace, issuer)

	token, err := m.GetToken(context.Background(), testMarketplace)
	require.NoError(t, err)
	assert.Equal(t, "cached", token.Value)
	issuer.AssertNotCalled(t, "ExchangeToken", mock.Anything)
}

func TestCredentialManager_ConcurrentCallersShareOneRefresh(t *testing.T) {
	store := newMemoryTokenStore()
	// Expires inside the refresh margin, so every caller needs a refresh
	require.NoError(t, store.Replace(context.Background(), &integration.AccessToken{
		Marketplace: testMarketplace, Value: "stale", ExpiresAt: time.Now().Add(2 * time.Minute),
	}))
	issuer := &blockingIssuer{release: make(chan struct{})}

	m := NewCredentialManager(store, fastCredentialConfig(), zap.NewNop())
	m.RegisterIssuer(testMarketplace, issuer)

	const callers = 10
	var wg sync.WaitGroup
	values := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := m.GetToken(context.Background(), testMarketplace)
			errs[i] = err
			if token != nil {
				values[i] = token.Value
			}
		}(i)
	}

	require.Eventually(t, func() bool { return issuer.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(issuer.release)
	wg.Wait()

	assert.Equal(t, int32(1), issuer.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh", values[i])
	}

	stored, err := store.Get(context.Background(), testMarketplace)
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.Value)
	assert.Equal(t, testMarketplace, stored.Marketplace)
}

func TestCredentialManager_AuthErrorIsNotRetried(t *testing.T) {
	issuer := new(MockTokenIssuer)
	authErr := &integration.AuthError{Marketplace: testMarketplace, Err: errors.New("invalid api key")}
	issuer.On("ExchangeToken", mock.Anything).Return(nil, authErr).Once()

	m := NewCredentialManager(newMemoryTokenStore(), fastCredentialConfig(), zap.NewNop())
	m.RegisterIssuer(testMarketplace, issuer)

	_, err := m.GetToken(context.Background(), testMarketplace)
	require.Error(t, err)
	assert.Equal(t, integration.ErrorClassAuth, integration.Classify(err))
	issuer.AssertNumberOfCalls(t, "ExchangeToken", 1)
}

func TestCredentialManager_TransientErrorIsRetried(t *testing.T) {
	issuer := new(MockTokenIssuer)
	issuer.On("ExchangeToken", mock.Anything).
		Return(nil, &integration.TransientNetworkError{Op: "token", StatusCode: 503}).Once()
	issuer.On("ExchangeToken", mock.Anything).
		Return(&integration.AccessToken{Value: "second", ExpiresAt: time.Now().Add(time.Hour)}, nil).Once()

	recorder := &countingRecorder{}
	m := NewCredentialManager(newMemoryTokenStore(), fastCredentialConfig(), zap.NewNop())
	m.RegisterIssuer(testMarketplace, issuer)
	m.SetRefreshRecorder(recorder)

	token, err := m.GetToken(context.Background(), testMarketplace)
	require.NoError(t, err)
	assert.Equal(t, "second", token.Value)
	issuer.AssertNumberOfCalls(t, "ExchangeToken", 2)
	assert.Equal(t, 2, recorder.attempts)
	assert.NoError(t, recorder.err)
}

func TestCredentialManager_GivesUpAfterMaxAttempts(t *testing.T) {
	issuer := new(MockTokenIssuer)
	issuer.On("ExchangeToken", mock.Anything).
		Return(nil, &integration.TransientNetworkError{Op: "token", StatusCode: 502})

	m := NewCredentialManager(newMemoryTokenStore(), fastCredentialConfig(), zap.NewNop())
	m.RegisterIssuer(testMarketplace, issuer)

	_, err := m.GetToken(context.Background(), testMarketplace)
	require.Error(t, err)
	assert.True(t, integration.IsRetryable(err))
	issuer.AssertNumberOfCalls(t, "ExchangeToken", 3)
}

func TestCredentialManager_UnknownMarketplace(t *testing.T) {
	m := NewCredentialManager(newMemoryTokenStore(), fastCredentialConfig(), zap.NewNop())

	_, err := m.GetToken(context.Background(), "nowhere")
	assert.ErrorIs(t, err, integration.ErrMarketplaceNotRegistered)
}

func TestCredentialManager_InvalidateForcesRefresh(t *testing.T) {
	store := newMemoryTokenStore()
	issuer := new(MockTokenIssuer)
	issuer.On("ExchangeToken", mock.Anything).
		Return(&integration.AccessToken{Value: "one", ExpiresAt: time.Now().Add(time.Hour)}, nil).Once()
	issuer.On("ExchangeToken", mock.Anything).
		Return(&integration.AccessToken{Value: "two", ExpiresAt: time.Now().Add(time.Hour)}, nil).Once()

	m := NewCredentialManager(store, fastCredentialConfig(), zap.NewNop())
	m.RegisterIssuer(testMarketplace, issuer)

	first, err := m.GetToken(context.Background(), testMarketplace)
	require.NoError(t, err)
	assert.Equal(t, "one", first.Value)

	require.NoError(t, m.Invalidate(context.Background(), testMarketplace))

	second, err := m.GetToken(context.Background(), testMarketplace)
	require.NoError(t, err)
	assert.Equal(t, "two", second.Value)
	issuer.AssertExpectations(t)
}

func TestCredentialManager_CallerCancellationLeavesFlightRunning(t *testing.T) {
	store := newMemoryTokenStore()
	issuer := &blockingIssuer{release: make(chan struct{})}

	m := NewCredentialManager(store, fastCredentialConfig(), zap.NewNop())
	m.RegisterIssuer(testMarketplace, issuer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.GetToken(ctx, testMarketplace)
		done <- err
	}()

	require.Eventually(t, func() bool { return issuer.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(issuer.release)
	require.Eventually(t, func() bool {
		token, err := store.Get(context.Background(), testMarketplace)
		return err == nil && token.Value == "fresh"
	}, time.Second, time.Millisecond)
}

type countingRecorder struct {
	mu       sync.Mutex
	attempts int
	err      error
}

func (r *countingRecorder) RecordTokenRefresh(_ context.Context, _ integration.MarketplaceID, attempts int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = attempts
	r.err = err
}
