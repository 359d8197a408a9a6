package holdings

import (
	"context"
	"errors"
	"strings"
	"time"

	"folio-backend/internal/application/schemas"
	"folio-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service encapsulates holdings operations. Every change ends with a recompute
// of the holding's cells in the same transaction.
type Service struct {
	DB      *gorm.DB
	Schemas *schemas.Service
}

// CreateHoldingInput is the body of a new position.
type CreateHoldingInput struct {
	AccountID    uuid.UUID       `json:"account_id" binding:"required"`
	AssetID      uuid.UUID       `json:"asset_id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	WeightOz     decimal.Decimal `json:"weight_oz"`
	PurchaseDate string          `json:"purchase_date"`
	Notes        string          `json:"notes" binding:"max=1000"`
}

// UpdateHoldingInput changes only the fields that are set.
type UpdateHoldingInput struct {
	Quantity     *decimal.Decimal `json:"quantity"`
	AverageCost  *decimal.Decimal `json:"average_cost"`
	WeightOz     *decimal.Decimal `json:"weight_oz"`
	PurchaseDate *string          `json:"purchase_date"`
	Notes        *string          `json:"notes" binding:"omitempty,max=1000"`
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return nil, domain.Invalid("purchase_date", "%q is not a date (YYYY-MM-DD)", s)
	}
	return &d, nil
}

func checkNonNegative(name string, d decimal.Decimal) error {
	if d.IsNegative() {
		return domain.Invalid(name, "must not be negative")
	}
	return nil
}

// ViewHoldings returns the holdings of an account.
func (s *Service) ViewHoldings(ctx context.Context, accountID uuid.UUID) ([]domain.Holding, error) {
	if accountID == uuid.Nil {
		return nil, errors.New("account_id is required")
	}
	var account domain.Account
	if err := s.DB.WithContext(ctx).Where("account_id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	var holdings []domain.Holding
	if err := s.DB.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at, holding_id").Find(&holdings).Error; err != nil {
		return nil, err
	}
	return holdings, nil
}

// GetHolding loads one holding.
func (s *Service) GetHolding(ctx context.Context, holdingID uuid.UUID) (*domain.Holding, error) {
	var holding domain.Holding
	if err := s.DB.WithContext(ctx).Where("holding_id = ?", holdingID).First(&holding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrHoldingNotFound
		}
		return nil, err
	}
	return &holding, nil
}

// CreateHolding adds a position and materializes its cells. The account's
// schema is bootstrapped on first use.
func (s *Service) CreateHolding(ctx context.Context, in CreateHoldingInput) (*domain.Holding, error) {
	for name, d := range map[string]decimal.Decimal{"quantity": in.Quantity, "average_cost": in.AverageCost, "weight_oz": in.WeightOz} {
		if err := checkNonNegative(name, d); err != nil {
			return nil, err
		}
	}
	purchased, err := parseDate(in.PurchaseDate)
	if err != nil {
		return nil, err
	}

	holding := &domain.Holding{
		AccountID:    in.AccountID,
		AssetID:      in.AssetID,
		Quantity:     in.Quantity,
		AverageCost:  in.AverageCost,
		WeightOz:     in.WeightOz,
		PurchaseDate: purchased,
		Notes:        in.Notes,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account domain.Account
		if err := tx.WithContext(ctx).Where("account_id = ?", in.AccountID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAccountNotFound
			}
			return err
		}
		var asset domain.Asset
		if err := tx.WithContext(ctx).Where("asset_id = ?", in.AssetID).First(&asset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrAssetNotFound
			}
			return err
		}
		if err := tx.WithContext(ctx).Create(holding).Error; err != nil {
			return err
		}

		_, err := s.Schemas.SchemaFor(ctx, tx, account)
		switch {
		case errors.Is(err, domain.ErrSchemaNotFound):
			_, err = s.Schemas.EnsureSchemaWithTx(ctx, tx, account)
			return err
		case err != nil:
			return err
		}
		_, err = s.Schemas.HoldingChanged(ctx, tx, holding.HoldingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return holding, nil
}

// UpdateHolding edits raw holding fields and recomputes the holding.
func (s *Service) UpdateHolding(ctx context.Context, holdingID uuid.UUID, in UpdateHoldingInput) (*domain.Holding, error) {
	var holding domain.Holding
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("holding_id = ?", holdingID).First(&holding).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrHoldingNotFound
			}
			return err
		}
		if in.Quantity != nil {
			if err := checkNonNegative("quantity", *in.Quantity); err != nil {
				return err
			}
			holding.Quantity = *in.Quantity
		}
		if in.AverageCost != nil {
			if err := checkNonNegative("average_cost", *in.AverageCost); err != nil {
				return err
			}
			holding.AverageCost = *in.AverageCost
		}
		if in.WeightOz != nil {
			if err := checkNonNegative("weight_oz", *in.WeightOz); err != nil {
				return err
			}
			holding.WeightOz = *in.WeightOz
		}
		if in.PurchaseDate != nil {
			d, err := parseDate(*in.PurchaseDate)
			if err != nil {
				return err
			}
			holding.PurchaseDate = d
		}
		if in.Notes != nil {
			holding.Notes = *in.Notes
		}
		if err := tx.WithContext(ctx).Save(&holding).Error; err != nil {
			return err
		}
		_, err := s.Schemas.HoldingChanged(ctx, tx, holding.HoldingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &holding, nil
}

// DeleteHolding removes a holding and its cells.
func (s *Service) DeleteHolding(ctx context.Context, holdingID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Where("holding_id = ?", holdingID).Delete(&domain.Holding{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrHoldingNotFound
		}
		return tx.WithContext(ctx).Where("holding_id = ?", holdingID).Delete(&domain.SchemaColumnValue{}).Error
	})
}
