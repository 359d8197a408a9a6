package constraints

import (
	"bytes"
	"encoding/json"

	"folio-backend/internal/catalog"
	"folio-backend/internal/domain"

	"github.com/shopspring/decimal"
)

// Patch is a requested change to one column constraint. A nil field is left alone;
// a Value of JSON null clears the constraint (unbounded min/max).
type Patch struct {
	Value      json.RawMessage `json:"value"`
	IsEditable *bool           `json:"is_editable"`
}

// ResetToMaster restores the master default value and bounds.
func ResetToMaster(row *domain.ColumnConstraint, master catalog.MasterConstraint) error {
	def, err := master.DefaultRow(row.ColumnID)
	if err != nil {
		return err
	}
	row.Value = def.Value
	row.MinValue = def.MinValue
	row.MaxValue = def.MaxValue
	return nil
}

// Apply edits row in place. Turning is_editable off resets the constraint to the
// master default in the same step. A locked constraint can be unlocked again only
// on a user column whose master is editable; anything else fails with
// ErrNotEditable, as do value edits on a locked constraint. siblings are the
// column's other constraints, used to keep min <= max and min_length <= max_length.
func Apply(col domain.SchemaColumn, row *domain.ColumnConstraint, siblings []domain.ColumnConstraint, master catalog.MasterConstraint, p Patch) error {
	if p.IsEditable != nil {
		wasEditable := row.IsEditable
		if !wasEditable && *p.IsEditable && (col.IsSystem || !master.IsEditable) {
			return domain.ErrNotEditable
		}
		row.IsEditable = *p.IsEditable
		if wasEditable && !row.IsEditable {
			if err := ResetToMaster(row, master); err != nil {
				return err
			}
		}
	}
	if p.Value == nil {
		return nil
	}
	if !row.IsEditable {
		return domain.ErrNotEditable
	}
	value, err := ParseValue(col, *row, p.Value)
	if err != nil {
		return err
	}
	candidate := *row
	candidate.Value = value
	if err := checkPairs(col, candidate, siblings); err != nil {
		return err
	}
	row.Value = value
	return nil
}

// ParseValue checks the shape of a constraint value for its name and the
// column's data type, and enforces the constraint's own bounds.
func ParseValue(col domain.SchemaColumn, row domain.ColumnConstraint, raw json.RawMessage) (domain.ConstraintValue, error) {
	trimmed := bytes.TrimSpace(raw)
	isNull := len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
	name := string(row.Name)

	switch row.Name {
	case domain.ConstraintMin, domain.ConstraintMax:
		if isNull {
			return nil, nil
		}
		d, err := decodeDecimal(trimmed)
		if err != nil {
			return nil, domain.Invalid(name, "must be a number")
		}
		if col.DataType == domain.DataTypeInteger && !d.IsInteger() {
			return nil, domain.Invalid(name, "must be a whole number")
		}
		if err := withinBounds(name, d, row); err != nil {
			return nil, err
		}
		return encode(d)
	case domain.ConstraintDecimalPlaces, domain.ConstraintMinLength, domain.ConstraintMaxLength:
		if isNull {
			return nil, domain.Invalid(name, "is required")
		}
		d, err := decodeDecimal(trimmed)
		if err != nil || !d.IsInteger() {
			return nil, domain.Invalid(name, "must be a whole number")
		}
		if err := withinBounds(name, d, row); err != nil {
			return nil, err
		}
		return encode(d.IntPart())
	case domain.ConstraintEnum:
		if isNull {
			return nil, nil
		}
		var opts domain.EnumOptions
		if err := json.Unmarshal(trimmed, &opts); err != nil {
			var values []string
			if err := json.Unmarshal(trimmed, &values); err != nil {
				return nil, domain.Invalid(name, "must be a list of values")
			}
			opts.Values = values
		}
		if len(opts.Values) == 0 && len(opts.ByAssetType) == 0 {
			return nil, domain.Invalid(name, "must list at least one value")
		}
		return encode(opts)
	}
	return nil, domain.ErrUnknownConstraint
}

func decodeDecimal(raw []byte) (decimal.Decimal, error) {
	var d decimal.Decimal
	err := json.Unmarshal(raw, &d)
	return d, err
}

func withinBounds(name string, d decimal.Decimal, row domain.ColumnConstraint) error {
	if row.MinValue != nil && d.LessThan(*row.MinValue) {
		return domain.Invalid(name, "must be at least %s", row.MinValue.String())
	}
	if row.MaxValue != nil && d.GreaterThan(*row.MaxValue) {
		return domain.Invalid(name, "must be at most %s", row.MaxValue.String())
	}
	return nil
}

func encode(v any) (domain.ConstraintValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return domain.ConstraintValue(raw), nil
}

func checkPairs(col domain.SchemaColumn, candidate domain.ColumnConstraint, siblings []domain.ColumnConstraint) error {
	merged := []domain.ColumnConstraint{candidate}
	for _, s := range siblings {
		if s.Name != candidate.Name {
			merged = append(merged, s)
		}
	}
	if lo, ok := Find(merged, domain.ConstraintMin); ok {
		if hi, ok := Find(merged, domain.ConstraintMax); ok {
			l, lok := lo.DecimalValue()
			h, hok := hi.DecimalValue()
			if lok && hok && l.GreaterThan(h) {
				return domain.Invalid(col.Identifier, "min must not exceed max")
			}
		}
	}
	if lo, ok := Find(merged, domain.ConstraintMinLength); ok {
		if hi, ok := Find(merged, domain.ConstraintMaxLength); ok {
			l, lok := lo.IntValue()
			h, hok := hi.IntValue()
			if lok && hok && l > h {
				return domain.Invalid(col.Identifier, "min_length must not exceed max_length")
			}
		}
	}
	return nil
}
