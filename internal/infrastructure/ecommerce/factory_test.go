package ecommerce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
)

func TestNewMarketplaceClient(t *testing.T) {
	t.Run("playauto", func(t *testing.T) {
		client, err := NewMarketplaceClient(config.MarketplaceConfig{
			ID:       "playauto-main",
			Provider: "playauto",
			BaseURL:  "http://playauto.test",
			APIKey:   "key",
			Email:    "ops@example.com",
			Password: "pw",
			TokenTTL: 12 * time.Hour,
			Timeout:  5 * time.Second,
		}, nil)
		require.NoError(t, err)

		adapter, ok := client.(*PlayautoAdapter)
		require.True(t, ok)
		assert.Equal(t, integration.MarketplaceID("playauto-main"), adapter.Marketplace())
		assert.Equal(t, integration.ProviderPlayauto, adapter.Provider())
		assert.Equal(t, "http://playauto.test", adapter.config.APIBaseURL)
		assert.Equal(t, 12*time.Hour, adapter.config.TokenTTL)
		assert.Equal(t, 5*time.Second, adapter.httpClient.Timeout)
	})

	t.Run("naver", func(t *testing.T) {
		client, err := NewMarketplaceClient(config.MarketplaceConfig{
			ID:           "naver",
			Provider:     "naver",
			ClientID:     "client-1",
			ClientSecret: testNaverSecret(t),
		}, nil)
		require.NoError(t, err)

		assert.Equal(t, integration.ProviderNaver, client.Provider())
		assert.Equal(t, NaverProductionAPIURL, client.(*NaverAdapter).config.APIBaseURL)
	})

	t.Run("missing credentials", func(t *testing.T) {
		_, err := NewMarketplaceClient(config.MarketplaceConfig{
			ID:       "playauto-main",
			Provider: "playauto",
			APIKey:   "key",
		}, nil)
		assert.ErrorIs(t, err, ErrPlayautoConfigMissingEmail)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewMarketplaceClient(config.MarketplaceConfig{ID: "coupang", Provider: "coupang"}, nil)
		assert.Error(t, err)
	})
}
