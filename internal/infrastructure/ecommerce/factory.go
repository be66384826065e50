package ecommerce

import (
	"fmt"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/config"
)

// MarketplaceClient is an adapter that also exchanges its own credentials for tokens
type MarketplaceClient interface {
	integration.MarketplaceAdapter
	integration.TokenIssuer
}

// NewMarketplaceClient builds the adapter for one configured marketplace.
// tokens is normally the credential manager, which in turn calls back into the
// returned client's ExchangeToken.
func NewMarketplaceClient(cfg config.MarketplaceConfig, tokens integration.TokenSource) (MarketplaceClient, error) {
	marketplace := integration.MarketplaceID(cfg.ID)

	switch cfg.Provider {
	case "playauto":
		pc := NewPlayautoConfig(marketplace, cfg.APIKey, cfg.Email, cfg.Password)
		if cfg.BaseURL != "" {
			pc.APIBaseURL = cfg.BaseURL
		}
		if cfg.Timeout > 0 {
			pc.TimeoutSeconds = int(cfg.Timeout.Seconds())
		}
		if cfg.TokenTTL > 0 {
			pc.TokenTTL = cfg.TokenTTL
		}
		return NewPlayautoAdapter(pc, tokens)

	case "naver":
		nc := NewNaverConfig(marketplace, cfg.ClientID, cfg.ClientSecret)
		if cfg.BaseURL != "" {
			nc.APIBaseURL = cfg.BaseURL
		}
		if cfg.Timeout > 0 {
			nc.TimeoutSeconds = int(cfg.Timeout.Seconds())
		}
		return NewNaverAdapter(nc, tokens)

	default:
		return nil, fmt.Errorf("marketplace %s: unknown provider %q", cfg.ID, cfg.Provider)
	}
}
