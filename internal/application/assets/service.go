package assets

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"folio-backend/internal/application/schemas"
	"folio-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service keeps the asset records the engine reads asset fields from. Price
// changes fan out to every holding of the asset.
type Service struct {
	DB      *gorm.DB
	Schemas *schemas.Service
}

type CreateAssetInput struct {
	AssetType  string          `json:"asset_type" binding:"required,asset_type"`
	Symbol     string          `json:"symbol" binding:"max=32"`
	Name       string          `json:"name" binding:"required,max=255"`
	Currency   string          `json:"currency" binding:"required,currency"`
	Price      decimal.Decimal `json:"price"`
	Attributes map[string]any  `json:"attributes"`
}

// CreateAsset stores a new asset.
func (s *Service) CreateAsset(ctx context.Context, in CreateAssetInput) (*domain.Asset, error) {
	assetType, err := domain.ParseAssetType(in.AssetType)
	if err != nil {
		return nil, domain.Invalid("asset_type", "%s", err.Error())
	}
	if in.Price.IsNegative() {
		return nil, domain.Invalid("price", "must not be negative")
	}
	asset := &domain.Asset{
		AssetType: assetType,
		Symbol:    strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Name:      strings.TrimSpace(in.Name),
		Currency:  strings.ToUpper(strings.TrimSpace(in.Currency)),
		Price:     in.Price,
	}
	if len(in.Attributes) > 0 {
		raw, err := json.Marshal(in.Attributes)
		if err != nil {
			return nil, domain.Invalid("attributes", "%s", err.Error())
		}
		asset.Attributes = datatypes.JSON(raw)
	}
	if err := s.DB.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, err
	}
	return asset, nil
}

// GetAsset loads one asset.
func (s *Service) GetAsset(ctx context.Context, assetID uuid.UUID) (*domain.Asset, error) {
	var a domain.Asset
	if err := s.DB.WithContext(ctx).Where("asset_id = ?", assetID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListAssets returns assets ordered by symbol, optionally of one type.
func (s *Service) ListAssets(ctx context.Context, assetType string) ([]domain.Asset, error) {
	q := s.DB.WithContext(ctx).Order("symbol, asset_id")
	if assetType != "" {
		at, err := domain.ParseAssetType(assetType)
		if err != nil {
			return nil, domain.Invalid("asset_type", "%s", err.Error())
		}
		q = q.Where("asset_type = ?", at)
	}
	var out []domain.Asset
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatePrice stores a new price and recomputes every holding of the asset.
// It returns the number of holdings recomputed.
func (s *Service) UpdatePrice(ctx context.Context, assetID uuid.UUID, price decimal.Decimal) (*domain.Asset, int, error) {
	if price.IsNegative() {
		return nil, 0, domain.Invalid("price", "must not be negative")
	}
	var asset domain.Asset
	var touched int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAssetNotFound
			}
			return err
		}
		asset.Price = price
		if err := tx.WithContext(ctx).Save(&asset).Error; err != nil {
			return err
		}
		var holdingIDs []uuid.UUID
		if err := tx.WithContext(ctx).Model(&domain.Holding{}).Where("asset_id = ?", assetID).
			Order("created_at, holding_id").Pluck("holding_id", &holdingIDs).Error; err != nil {
			return err
		}
		for _, id := range holdingIDs {
			if _, err := s.Schemas.HoldingChanged(ctx, tx, id); err != nil {
				if errors.Is(err, domain.ErrSchemaNotFound) {
					continue
				}
				return err
			}
			touched++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	log.Info().Str("asset_id", assetID.String()).Str("price", price.String()).Int("holdings", touched).Msg("asset price updated")
	return &asset, touched, nil
}
