package schemas

import (
	"context"
	"errors"

	"folio-backend/internal/application/constraints"
	"folio-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func loadValue(ctx context.Context, tx *gorm.DB, valueID uuid.UUID) (*domain.SchemaColumnValue, error) {
	var v domain.SchemaColumnValue
	if err := tx.WithContext(ctx).First(&v, "value_id = ?", valueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrValueNotFound
		}
		return nil, err
	}
	return &v, nil
}

// FindValue returns the cell for a (column, holding) pair.
func (s *Service) FindValue(ctx context.Context, columnID, holdingID uuid.UUID) (*domain.SchemaColumnValue, error) {
	var v domain.SchemaColumnValue
	err := s.DB.WithContext(ctx).Where("column_id = ? AND holding_id = ?", columnID, holdingID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrValueNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SetValue validates raw against the column and stores it. Cells backed by a
// holding field write through to the holding and stay SYSTEM; every other
// cell becomes a sticky USER override. The holding is then recomputed so
// downstream formulas see the new value.
func (s *Service) SetValue(ctx context.Context, valueID uuid.UUID, raw any) (*domain.SchemaColumnValue, error) {
	var out *domain.SchemaColumnValue
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		db := tx.WithContext(ctx)
		cell, err := loadValue(ctx, tx, valueID)
		if err != nil {
			return err
		}
		col, err := loadColumn(ctx, tx, cell.ColumnID)
		if err != nil {
			return err
		}
		if !col.IsEditable {
			return domain.ErrNotEditable
		}
		var holding domain.Holding
		if err := db.First(&holding, "holding_id = ?", cell.HoldingID).Error; err != nil {
			return err
		}
		var asset domain.Asset
		if err := db.First(&asset, "asset_id = ?", holding.AssetID).Error; err != nil {
			return err
		}
		var rules []domain.ColumnConstraint
		if err := db.Where("column_id = ?", col.ColumnID).Find(&rules).Error; err != nil {
			return err
		}
		typed, err := constraints.Validate(*col, rules, asset.AssetType, raw)
		if err != nil {
			return err
		}

		var behavior domain.ColumnAssetBehavior
		err = db.Where("column_id = ? AND asset_type = ?", col.ColumnID, asset.AssetType).First(&behavior).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if field, ok := behavior.Source().(domain.HoldingField); ok && err == nil {
			if err := holding.SetField(field.Field, typed); err != nil {
				return domain.Invalid(col.Identifier, "%v", err)
			}
			if err := db.Save(&holding).Error; err != nil {
				return err
			}
			cell.Value = nil
			cell.Source = domain.SourceSystem
		} else {
			cell.Value = typed.Serialize()
			cell.Source = domain.SourceUser
		}
		if err := db.Model(cell).Select("value", "source", "updated_at").Updates(cell).Error; err != nil {
			return err
		}
		if _, err := s.HoldingChanged(ctx, tx, holding.HoldingID); err != nil {
			return err
		}
		out, err = loadValue(ctx, tx, valueID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RevertValue drops a user override and lets the system value come back.
func (s *Service) RevertValue(ctx context.Context, valueID uuid.UUID) (*domain.SchemaColumnValue, error) {
	var out *domain.SchemaColumnValue
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cell, err := loadValue(ctx, tx, valueID)
		if err != nil {
			return err
		}
		if cell.Source == domain.SourceUser {
			cell.Value = nil
			cell.Source = domain.SourceSystem
			if err := tx.WithContext(ctx).Model(cell).Select("value", "source", "updated_at").Updates(cell).Error; err != nil {
				return err
			}
		}
		if _, err := s.HoldingChanged(ctx, tx, cell.HoldingID); err != nil {
			return err
		}
		out, err = loadValue(ctx, tx, valueID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
