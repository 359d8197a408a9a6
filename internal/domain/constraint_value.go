package domain

import (
	"bytes"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
)

// ConstraintValue is the JSON encoding of a constraint value (a number, a quoted
// decimal or enum options). It is stored as text. SQLite hands back bare numbers
// as int64 or float64 when the column was declared with numeric affinity, so Scan
// accepts those too.
type ConstraintValue []byte

func (ConstraintValue) GormDataType() string {
	return "text"
}

func (v ConstraintValue) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return string(v), nil
}

func (v *ConstraintValue) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		*v = nil
	case []byte:
		*v = append((*v)[:0], t...)
	case string:
		*v = ConstraintValue(t)
	case int64:
		*v = ConstraintValue(strconv.FormatInt(t, 10))
	case float64:
		*v = ConstraintValue(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("constraint value: unsupported type %T", src)
	}
	return nil
}

func (v ConstraintValue) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

func (v *ConstraintValue) UnmarshalJSON(b []byte) error {
	if v == nil {
		return errors.New("constraint value: UnmarshalJSON on nil pointer")
	}
	*v = append((*v)[:0], bytes.TrimSpace(b)...)
	return nil
}

func (v ConstraintValue) String() string {
	return string(v)
}
