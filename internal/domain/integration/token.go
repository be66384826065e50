package integration

import (
	"context"
	"time"
)

// DefaultRefreshMargin is how long before expiry a token stops being handed out
const DefaultRefreshMargin = 5 * time.Minute

// AccessToken is an issuer-assigned bearer credential scoped to one marketplace
type AccessToken struct {
	Marketplace MarketplaceID
	Value       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// IsUsable reports whether the token may still be used at now given the refresh margin
func (t *AccessToken) IsUsable(now time.Time, margin time.Duration) bool {
	if t == nil || t.Value == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-margin))
}

// IsExpired reports whether the issuer would reject the token at now
func (t *AccessToken) IsExpired(now time.Time) bool {
	return t == nil || !now.Before(t.ExpiresAt)
}

// TokenStore keeps exactly one live token per marketplace
type TokenStore interface {
	// Get returns ErrTokenNotFound when no token is stored
	Get(ctx context.Context, marketplace MarketplaceID) (*AccessToken, error)
	// Replace atomically swaps the stored token for the marketplace
	Replace(ctx context.Context, token *AccessToken) error
	// Delete discards the stored token
	Delete(ctx context.Context, marketplace MarketplaceID) error
}

// ValueSealer protects token values at rest
type ValueSealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// PlainSealer stores values unencrypted; used when no encryption key is configured
type PlainSealer struct{}

// Seal returns a copy of plaintext
func (PlainSealer) Seal(plaintext []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

// Open returns a copy of sealed
func (PlainSealer) Open(sealed []byte) ([]byte, error) {
	return append([]byte(nil), sealed...), nil
}
