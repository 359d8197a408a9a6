// Package catalog holds the immutable system blueprints the engine copies from:
// master constraints per data type, column templates with their per-asset-type
// behaviors, the system formulas those templates reference, and the default
// column policy for each account type.
package catalog

import (
	"encoding/json"
	"fmt"

	"folio-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MasterConstraint is the system template a column constraint is copied from.
// Min and Max bound the constraint's own value (e.g. decimal_places between 0 and 10).
// Optional constraints are attached only when a template or caller asks for them.
type MasterConstraint struct {
	Name       domain.ConstraintName
	Default    any
	Min        *decimal.Decimal
	Max        *decimal.Decimal
	IsEditable bool
	Optional   bool
}

// ConstraintOverride replaces a master default when a column is created.
type ConstraintOverride struct {
	Name       domain.ConstraintName
	Value      any
	IsEditable *bool
}

// ConstraintCatalog maps each data type to its master constraints.
type ConstraintCatalog struct {
	byType map[domain.DataType][]MasterConstraint
}

func bound(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

// DefaultConstraints is the catalog the service runs with.
func DefaultConstraints() *ConstraintCatalog {
	numericBounds := []MasterConstraint{
		{Name: domain.ConstraintMin, IsEditable: true},
		{Name: domain.ConstraintMax, IsEditable: true},
	}
	return NewConstraintCatalog(map[domain.DataType][]MasterConstraint{
		domain.DataTypeDecimal: append([]MasterConstraint{
			{Name: domain.ConstraintDecimalPlaces, Default: 2, Min: bound(0), Max: bound(10), IsEditable: true},
		}, numericBounds...),
		domain.DataTypePercent: append([]MasterConstraint{
			{Name: domain.ConstraintDecimalPlaces, Default: 4, Min: bound(0), Max: bound(10), IsEditable: true},
		}, numericBounds...),
		domain.DataTypeInteger: numericBounds,
		domain.DataTypeString: {
			{Name: domain.ConstraintMinLength, Default: 0, Min: bound(0), Max: bound(10000), IsEditable: true},
			{Name: domain.ConstraintMaxLength, Default: 255, Min: bound(1), Max: bound(10000), IsEditable: true},
			{Name: domain.ConstraintEnum, IsEditable: false, Optional: true},
		},
		domain.DataTypeBoolean: nil,
		domain.DataTypeDate:    nil,
	})
}

func NewConstraintCatalog(byType map[domain.DataType][]MasterConstraint) *ConstraintCatalog {
	return &ConstraintCatalog{byType: byType}
}

// ForDataType lists the master constraints for dt in catalog order.
func (c *ConstraintCatalog) ForDataType(dt domain.DataType) []MasterConstraint {
	return c.byType[dt]
}

// Master finds one master constraint.
func (c *ConstraintCatalog) Master(dt domain.DataType, name domain.ConstraintName) (MasterConstraint, bool) {
	for _, m := range c.byType[dt] {
		if m.Name == name {
			return m, true
		}
	}
	return MasterConstraint{}, false
}

// DefaultRow returns the master default for a column constraint: value, min and max.
func (m MasterConstraint) DefaultRow(columnID uuid.UUID) (domain.ColumnConstraint, error) {
	raw, err := encodeValue(m.Default)
	if err != nil {
		return domain.ColumnConstraint{}, err
	}
	return domain.ColumnConstraint{
		ColumnID:   columnID,
		Name:       m.Name,
		Value:      raw,
		MinValue:   m.Min,
		MaxValue:   m.Max,
		IsEditable: m.IsEditable,
	}, nil
}

// Effective returns the master constraint for name as a column created with
// overrides sees it: an override's value becomes the default and its
// is_editable flag wins.
func (c *ConstraintCatalog) Effective(dt domain.DataType, name domain.ConstraintName, overrides []ConstraintOverride) (MasterConstraint, bool) {
	m, ok := c.Master(dt, name)
	if !ok {
		return m, false
	}
	for _, o := range overrides {
		if o.Name != name {
			continue
		}
		m.Default = o.Value
		if o.IsEditable != nil {
			m.IsEditable = *o.IsEditable
		}
	}
	return m, true
}

// Instantiate copies the master constraints for dt onto a column, applying overrides.
// Overrides naming a constraint the data type does not support are rejected.
func (c *ConstraintCatalog) Instantiate(columnID uuid.UUID, dt domain.DataType, overrides []ConstraintOverride) ([]domain.ColumnConstraint, error) {
	byName := map[domain.ConstraintName]ConstraintOverride{}
	for _, o := range overrides {
		if _, ok := c.Master(dt, o.Name); !ok {
			return nil, fmt.Errorf("constraint %s does not apply to %s columns", o.Name, dt)
		}
		byName[o.Name] = o
	}

	var out []domain.ColumnConstraint
	for _, m := range c.byType[dt] {
		o, overridden := byName[m.Name]
		if m.Optional && !overridden {
			continue
		}
		row, err := m.DefaultRow(columnID)
		if err != nil {
			return nil, err
		}
		if overridden {
			if row.Value, err = encodeValue(o.Value); err != nil {
				return nil, err
			}
			if o.IsEditable != nil {
				row.IsEditable = *o.IsEditable
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func encodeValue(v any) (domain.ConstraintValue, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode constraint value: %w", err)
	}
	return domain.ConstraintValue(raw), nil
}
