package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// reverseSealer is a reversible sealer that makes sealing visible in the stored bytes
type reverseSealer struct{}

func (reverseSealer) Seal(p []byte) ([]byte, error) { return reverse(p), nil }
func (reverseSealer) Open(s []byte) ([]byte, error) { return reverse(s), nil }

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

func TestGormTokenStore(t *testing.T) {
	db := newSQLiteDB(t)
	store := NewGormTokenStore(db, reverseSealer{})
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := store.Get(ctx, testMarketplace)
	assert.ErrorIs(t, err, integration.ErrTokenNotFound)

	require.NoError(t, store.Replace(ctx, &integration.AccessToken{
		Marketplace: "naver-store", Value: "old", IssuedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.Replace(ctx, &integration.AccessToken{
		Marketplace: testMarketplace, Value: "tok-1", IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}))
	require.NoError(t, store.Replace(ctx, &integration.AccessToken{
		Marketplace: testMarketplace, Value: "tok-2", IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}))

	token, err := store.Get(ctx, testMarketplace)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token.Value)
	assert.True(t, now.Add(24*time.Hour).Equal(token.ExpiresAt))

	var row models.AccessTokenModel
	require.NoError(t, db.First(&row, "marketplace = ?", string(testMarketplace)).Error)
	assert.Equal(t, "2-kot", string(row.SealedValue))

	_, err = store.Get(ctx, "naver-store")
	assert.ErrorIs(t, err, integration.ErrTokenNotFound, "expired tokens are purged on replace")

	require.NoError(t, store.Delete(ctx, testMarketplace))
	_, err = store.Get(ctx, testMarketplace)
	assert.ErrorIs(t, err, integration.ErrTokenNotFound)
}
