package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the text form of date cells.
const DateLayout = "2006-01-02"

// TypedValue is a cell value after coercion to its column's data type.
type TypedValue struct {
	Type    DataType
	Null    bool
	Decimal decimal.Decimal
	Str     string
	Bool    bool
	Date    time.Time
	// Places, when set, fixes the number of fractional digits in the text form of a number.
	Places *int32
}

// String is the persisted text form. Percent values stay fractions.
func (v TypedValue) String() string {
	if v.Null {
		return ""
	}
	switch v.Type {
	case DataTypeDecimal, DataTypeInteger, DataTypePercent:
		if v.Places != nil {
			return v.Decimal.StringFixed(*v.Places)
		}
		return v.Decimal.String()
	case DataTypeBoolean:
		return strconv.FormatBool(v.Bool)
	case DataTypeDate:
		return v.Date.Format(DateLayout)
	default:
		return v.Str
	}
}

// Serialize returns the text to store, or nil for a null value.
func (v TypedValue) Serialize() *string {
	if v.Null {
		return nil
	}
	s := v.String()
	return &s
}

// FormatRaw serializes a raw holding or asset field for a column of type dt.
// Raw numeric values are stored unrounded.
func FormatRaw(dt DataType, raw any) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	text := func(s string) (*string, error) { return &s, nil }

	switch dt {
	case DataTypeDecimal, DataTypeInteger, DataTypePercent:
		d, err := toDecimal(raw)
		if err != nil {
			return nil, err
		}
		return text(d.String())
	case DataTypeBoolean:
		switch b := raw.(type) {
		case bool:
			return text(strconv.FormatBool(b))
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", b)
			}
			return text(strconv.FormatBool(parsed))
		}
	case DataTypeDate:
		switch d := raw.(type) {
		case time.Time:
			return text(d.Format(DateLayout))
		case string:
			if strings.TrimSpace(d) == "" {
				return nil, nil
			}
			parsed, err := time.Parse(DateLayout, strings.TrimSpace(d))
			if err != nil {
				return nil, fmt.Errorf("%q is not a date", d)
			}
			return text(parsed.Format(DateLayout))
		}
	case DataTypeString:
		switch s := raw.(type) {
		case string:
			return text(s)
		case decimal.Decimal:
			return text(s.String())
		case json.Number:
			return text(s.String())
		case bool:
			return text(strconv.FormatBool(s))
		case time.Time:
			return text(s.Format(DateLayout))
		case fmt.Stringer:
			return text(s.String())
		}
	}
	return nil, fmt.Errorf("cannot store %T in a %s column", raw, dt)
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	}
	return decimal.Zero, fmt.Errorf("cannot read %T as a number", raw)
}
