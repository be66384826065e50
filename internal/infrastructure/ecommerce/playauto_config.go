package ecommerce

import (
	"errors"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
)

// PlayautoConfig holds configuration for the Playauto open API
type PlayautoConfig struct {
	// Marketplace is the id this adapter instance serves
	Marketplace integration.MarketplaceID
	// APIKey is sent as x-api-key on every request
	APIKey string
	// Email and Password are the account credentials exchanged for a token
	Email    string
	Password string
	// APIBaseURL is the base URL for the Playauto API
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// PageSize is the page length for order and stock listings
	PageSize int
	// PushChunkSize bounds items per stock edit request
	PushChunkSize int
	// TokenTTL is how long an issued token is valid
	TokenTTL time.Duration
	// DateType selects which order date the window filters on
	DateType string
}

const (
	// PlayautoProductionAPIURL is the production API endpoint
	PlayautoProductionAPIURL = "https://openapi.playauto.io"

	playautoDefaultPageSize = 100
	playautoDefaultTokenTTL = 24 * time.Hour
	playautoDefaultDateType = "wdate"
	defaultTimeoutSeconds   = 30
)

// Errors for Playauto configuration
var (
	ErrPlayautoConfigMissingMarketplace = errors.New("playauto: marketplace id is required")
	ErrPlayautoConfigMissingAPIKey      = errors.New("playauto: api key is required")
	ErrPlayautoConfigMissingEmail       = errors.New("playauto: email is required")
	ErrPlayautoConfigMissingPassword    = errors.New("playauto: password is required")
)

// NewPlayautoConfig creates a new Playauto configuration with defaults
func NewPlayautoConfig(marketplace integration.MarketplaceID, apiKey, email, password string) *PlayautoConfig {
	return &PlayautoConfig{
		Marketplace:    marketplace,
		APIKey:         apiKey,
		Email:          email,
		Password:       password,
		APIBaseURL:     PlayautoProductionAPIURL,
		TimeoutSeconds: defaultTimeoutSeconds,
		PageSize:       playautoDefaultPageSize,
		PushChunkSize:  playautoDefaultPageSize,
		TokenTTL:       playautoDefaultTokenTTL,
		DateType:       playautoDefaultDateType,
	}
}

// Validate validates the Playauto configuration and fills in defaults
func (c *PlayautoConfig) Validate() error {
	if !c.Marketplace.IsValid() {
		return ErrPlayautoConfigMissingMarketplace
	}
	if c.APIKey == "" {
		return ErrPlayautoConfigMissingAPIKey
	}
	if c.Email == "" {
		return ErrPlayautoConfigMissingEmail
	}
	if c.Password == "" {
		return ErrPlayautoConfigMissingPassword
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = PlayautoProductionAPIURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.PageSize <= 0 {
		c.PageSize = playautoDefaultPageSize
	}
	if c.PushChunkSize <= 0 {
		c.PushChunkSize = playautoDefaultPageSize
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = playautoDefaultTokenTTL
	}
	if c.DateType == "" {
		c.DateType = playautoDefaultDateType
	}
	return nil
}
