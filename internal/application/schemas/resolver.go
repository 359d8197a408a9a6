package schemas

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"folio-backend/internal/application/constraints"
	"folio-backend/internal/domain"
	"folio-backend/internal/fx"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultDecimalPlaces = 2

// pass is one recompute over a fixed schema snapshot. Its FX memo lives only
// as long as the enclosing transaction.
type pass struct {
	tx              *gorm.DB
	state           *schemaState
	order           []domain.SchemaColumn
	profileCurrency string
	rates           *fx.Memo
	assets          map[uuid.UUID]*domain.Asset
	report          *RecomputeReport
}

func (p *pass) asset(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	if a, ok := p.assets[id]; ok {
		return a, nil
	}
	var a domain.Asset
	if err := p.tx.WithContext(ctx).First(&a, "asset_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, err
	}
	p.assets[id] = &a
	return &a, nil
}

// recomputeHolding resolves every column for one holding in evaluation order,
// so formulas read values already written earlier in the same pass.
func (p *pass) recomputeHolding(ctx context.Context, h *domain.Holding) error {
	p.report.Holdings++
	if len(p.order) == 0 {
		return nil
	}
	asset, err := p.asset(ctx, h.AssetID)
	if err != nil {
		return err
	}
	db := p.tx.WithContext(ctx)

	var stored []domain.SchemaColumnValue
	if err := db.Where("holding_id = ? AND column_id IN ?", h.HoldingID, p.state.columnIDs()).Find(&stored).Error; err != nil {
		return err
	}
	cells := make(map[uuid.UUID]*domain.SchemaColumnValue, len(stored))
	for i := range stored {
		cells[stored[i].ColumnID] = &stored[i]
	}

	values := make(map[string]*string, len(p.order))
	for _, col := range p.order {
		cell, exists := cells[col.ColumnID]
		if !exists {
			cell = &domain.SchemaColumnValue{ColumnID: col.ColumnID, HoldingID: h.HoldingID, Source: domain.SourceSystem}
		}
		before := *cell

		if cell.Source == domain.SourceUser {
			if cell.Value == nil || constraints.EnumAllows(p.state.rules[col.ColumnID], asset.AssetType, *cell.Value) {
				values[col.Identifier] = cell.Value
				if !exists {
					if err := db.Create(cell).Error; err != nil {
						return err
					}
				}
				continue
			}
			log.Info().
				Str("holding_id", h.HoldingID.String()).
				Str("column", col.Identifier).
				Msg("user value no longer allowed, clearing override")
			p.report.RevertedOverrides++
		}

		value, source, err := p.resolve(ctx, col, h, asset, values)
		if err != nil {
			p.report.FailedCells++
			log.Warn().Err(err).
				Str("schema_id", p.state.schema.SchemaID.String()).
				Str("holding_id", h.HoldingID.String()).
				Str("column", col.Identifier).
				Msg("cell resolved to null")
		}
		cell.Value = value
		cell.Source = source
		values[col.Identifier] = value

		switch {
		case !exists:
			if err := db.Create(cell).Error; err != nil {
				return err
			}
			p.report.CellsWritten++
		case !sameText(before.Value, cell.Value) || before.Source != cell.Source:
			if err := db.Model(cell).Select("value", "source", "updated_at").Updates(cell).Error; err != nil {
				return err
			}
			p.report.CellsWritten++
		}
	}
	return nil
}

// resolve computes one cell from the behavior declared for the asset type.
// A returned error means the cell is null and the failure is isolated.
func (p *pass) resolve(ctx context.Context, col domain.SchemaColumn, h *domain.Holding, asset *domain.Asset, values map[string]*string) (*string, domain.CellSource, error) {
	behavior, ok := p.state.behaviors[col.ColumnID][asset.AssetType]
	if !ok {
		return nil, domain.SourceSystem, nil
	}
	switch src := behavior.Source().(type) {
	case domain.HoldingField:
		raw, _ := h.Field(src.Field)
		v, err := domain.FormatRaw(col.DataType, raw)
		return v, domain.SourceSystem, err
	case domain.AssetField:
		raw, _ := asset.Field(src.Field)
		v, err := domain.FormatRaw(col.DataType, raw)
		return v, domain.SourceSystem, err
	case domain.Constant:
		v, err := domain.FormatRaw(col.DataType, src.Value)
		return v, domain.SourceSystem, err
	case domain.FormulaRef:
		v, err := p.evaluate(ctx, col, src.FormulaID, asset, values)
		return v, domain.SourceFormula, err
	}
	return nil, domain.SourceSystem, fmt.Errorf("column %s has an unreadable behavior for %s", col.Identifier, asset.AssetType)
}

func (p *pass) evaluate(ctx context.Context, col domain.SchemaColumn, formulaID uuid.UUID, asset *domain.Asset, values map[string]*string) (*string, error) {
	def, ok := p.state.formulas[formulaID]
	if !ok {
		return nil, fmt.Errorf("%w: formula %s is missing", domain.ErrEvaluation, formulaID)
	}
	expr, err := p.state.expression(formulaID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEvaluation, err)
	}

	vars := map[string]decimal.Decimal{}
	for _, dep := range def.DependencyList() {
		if domain.IsImplicitIdentifier(dep) {
			rate, err := fx.Resolve(ctx, p.rates, asset.Currency, p.profileCurrency)
			if err != nil {
				return nil, err
			}
			vars[dep] = rate
			continue
		}
		if d, ok := parseStored(values[dep]); ok {
			vars[dep] = d
		} else if def.DependencyPolicy == domain.DependencyAutoExpand {
			vars[dep] = decimal.Zero
		}
	}

	result, err := expr.Evaluate(vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEvaluation, err)
	}
	places := p.precision(col, def)
	text := result.Round(places).StringFixed(places)
	return &text, nil
}

// precision: integer columns have no fractional digits; non-system formulas
// use their own decimal_places; system formulas prefer the column's constraint,
// then the formula's, then the default.
func (p *pass) precision(col domain.SchemaColumn, def domain.FormulaDefinition) int32 {
	if col.DataType == domain.DataTypeInteger {
		return 0
	}
	if !def.IsSystem {
		if def.DecimalPlaces != nil {
			return int32(*def.DecimalPlaces)
		}
		return defaultDecimalPlaces
	}
	if dp, ok := constraints.DecimalPlaces(p.state.rules[col.ColumnID]); ok {
		return int32(dp)
	}
	if def.DecimalPlaces != nil {
		return int32(*def.DecimalPlaces)
	}
	return defaultDecimalPlaces
}

func parseStored(v *string) (decimal.Decimal, bool) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*v))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
