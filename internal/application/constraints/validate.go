// Package constraints coerces user input to a column's data type and checks it
// against the column's constraints.
package constraints

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"folio-backend/internal/domain"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Find returns the named constraint from rules.
func Find(rules []domain.ColumnConstraint, name domain.ConstraintName) (domain.ColumnConstraint, bool) {
	for _, r := range rules {
		if r.Name == name {
			return r, true
		}
	}
	return domain.ColumnConstraint{}, false
}

// DecimalPlaces returns the column's decimal_places constraint when one is set.
func DecimalPlaces(rules []domain.ColumnConstraint) (int, bool) {
	r, ok := Find(rules, domain.ConstraintDecimalPlaces)
	if !ok {
		return 0, false
	}
	return r.IntValue()
}

// EnumAllows reports whether value is acceptable under the column's enum for
// assetType. Columns without an enum accept everything.
func EnumAllows(rules []domain.ColumnConstraint, assetType domain.AssetType, value string) bool {
	r, ok := Find(rules, domain.ConstraintEnum)
	if !ok {
		return true
	}
	opts, ok := r.EnumValue()
	if !ok {
		return true
	}
	for _, allowed := range opts.AllowedFor(assetType) {
		if allowed == value {
			return true
		}
	}
	return false
}

// Validate coerces raw to the column's data type, then applies enum, numeric
// range and length constraints. Percent input is read as percentage points
// ("12.5" or "12.5%") and returned as a fraction.
func Validate(col domain.SchemaColumn, rules []domain.ColumnConstraint, assetType domain.AssetType, raw any) (domain.TypedValue, error) {
	v, err := coerce(col, rules, raw)
	if err != nil {
		return v, err
	}
	if !EnumAllows(rules, assetType, v.String()) {
		return v, domain.Invalid(col.Identifier, "%q is not one of the allowed values", v.String())
	}
	if col.DataType.Numeric() {
		if r, ok := Find(rules, domain.ConstraintMin); ok {
			if min, ok := r.DecimalValue(); ok && v.Decimal.LessThan(min) {
				return v, domain.Invalid(col.Identifier, "must be at least %s", min)
			}
		}
		if r, ok := Find(rules, domain.ConstraintMax); ok {
			if max, ok := r.DecimalValue(); ok && v.Decimal.GreaterThan(max) {
				return v, domain.Invalid(col.Identifier, "must be at most %s", max)
			}
		}
	}
	if col.DataType == domain.DataTypeString {
		n := utf8.RuneCountInString(v.Str)
		if r, ok := Find(rules, domain.ConstraintMinLength); ok {
			if min, ok := r.IntValue(); ok && n < min {
				return v, domain.Invalid(col.Identifier, "must be at least %d characters", min)
			}
		}
		if r, ok := Find(rules, domain.ConstraintMaxLength); ok {
			if max, ok := r.IntValue(); ok && n > max {
				return v, domain.Invalid(col.Identifier, "must be at most %d characters", max)
			}
		}
	}
	return v, nil
}

func coerce(col domain.SchemaColumn, rules []domain.ColumnConstraint, raw any) (domain.TypedValue, error) {
	out := domain.TypedValue{Type: col.DataType}
	text, isText := inputText(raw)

	if col.DataType == domain.DataTypeString {
		if raw == nil {
			return out, domain.Invalid(col.Identifier, "Value is required")
		}
		out.Str = text
		return out, nil
	}
	if raw == nil || (isText && strings.TrimSpace(text) == "") {
		return out, domain.Invalid(col.Identifier, "Value is required")
	}
	text = strings.TrimSpace(text)

	switch col.DataType {
	case domain.DataTypeDecimal, domain.DataTypeInteger, domain.DataTypePercent:
		if b, ok := raw.(bool); ok {
			return out, domain.Invalid(col.Identifier, "%t is not a number", b)
		}
		percent := col.DataType == domain.DataTypePercent
		if percent {
			text = strings.TrimSpace(strings.TrimSuffix(text, "%"))
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(text, ",", ""))
		if err != nil {
			return out, domain.Invalid(col.Identifier, "%q is not a number", text)
		}
		if percent {
			d = d.Div(hundred)
		}
		if col.DataType == domain.DataTypeInteger {
			if !d.IsInteger() {
				return out, domain.Invalid(col.Identifier, "%q is not a whole number", text)
			}
		} else if dp, ok := DecimalPlaces(rules); ok {
			places := int32(dp)
			d = d.Round(places)
			out.Places = &places
		}
		out.Decimal = d
	case domain.DataTypeBoolean:
		if b, ok := raw.(bool); ok {
			out.Bool = b
			return out, nil
		}
		switch strings.ToLower(text) {
		case "true", "t", "1", "yes", "y":
			out.Bool = true
		case "false", "f", "0", "no", "n":
			out.Bool = false
		default:
			return out, domain.Invalid(col.Identifier, "%q is not true or false", text)
		}
	case domain.DataTypeDate:
		d, err := time.Parse(domain.DateLayout, text)
		if err != nil {
			return out, domain.Invalid(col.Identifier, "%q is not a date (YYYY-MM-DD)", text)
		}
		out.Date = d
	default:
		return out, domain.Invalid(col.Identifier, "unsupported data type %s", col.DataType)
	}
	return out, nil
}

// inputText renders raw request input as text. The bool reports whether raw was already text.
func inputText(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case json.Number:
		return v.String(), false
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), false
	case int:
		return strconv.Itoa(v), false
	case int64:
		return strconv.FormatInt(v, 10), false
	case bool:
		return strconv.FormatBool(v), false
	case decimal.Decimal:
		return v.String(), false
	}
	return fmt.Sprint(raw), false
}
