package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
)

// GormTokenStore keeps one sealed access token per marketplace in access_tokens
type GormTokenStore struct {
	db     *gorm.DB
	sealer integration.ValueSealer
}

// NewGormTokenStore creates a token store. A nil sealer stores values in plain text.
func NewGormTokenStore(db *gorm.DB, sealer integration.ValueSealer) *GormTokenStore {
	if sealer == nil {
		sealer = integration.PlainSealer{}
	}
	return &GormTokenStore{db: db, sealer: sealer}
}

// Get returns the stored token for the marketplace
func (s *GormTokenStore) Get(ctx context.Context, marketplace integration.MarketplaceID) (*integration.AccessToken, error) {
	var model models.AccessTokenModel
	if err := s.db.WithContext(ctx).First(&model, "marketplace = ?", string(marketplace)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrTokenNotFound
		}
		return nil, err
	}
	value, err := s.sealer.Open(model.SealedValue)
	if err != nil {
		return nil, fmt.Errorf("open token for %s: %w", marketplace, err)
	}
	return &integration.AccessToken{
		Marketplace: marketplace,
		Value:       string(value),
		IssuedAt:    model.IssuedAt,
		ExpiresAt:   model.ExpiresAt,
	}, nil
}

// Replace swaps the stored token and purges tokens that have already expired
func (s *GormTokenStore) Replace(ctx context.Context, token *integration.AccessToken) error {
	sealed, err := s.sealer.Seal([]byte(token.Value))
	if err != nil {
		return fmt.Errorf("seal token for %s: %w", token.Marketplace, err)
	}
	now := time.Now().UTC()
	model := &models.AccessTokenModel{
		Marketplace: string(token.Marketplace),
		SealedValue: sealed,
		IssuedAt:    token.IssuedAt.UTC(),
		ExpiresAt:   token.ExpiresAt.UTC(),
		UpdatedAt:   now,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "marketplace"}},
			DoUpdates: clause.AssignmentColumns([]string{"sealed_value", "issued_at", "expires_at", "updated_at"}),
		}).Create(model).Error; err != nil {
			return err
		}
		return tx.Where("expires_at < ? AND marketplace <> ?", now, string(token.Marketplace)).
			Delete(&models.AccessTokenModel{}).Error
	})
}

// Delete discards the stored token
func (s *GormTokenStore) Delete(ctx context.Context, marketplace integration.MarketplaceID) error {
	return s.db.WithContext(ctx).
		Where("marketplace = ?", string(marketplace)).
		Delete(&models.AccessTokenModel{}).Error
}

// Ensure GormTokenStore implements TokenStore
var _ integration.TokenStore = (*GormTokenStore)(nil)
