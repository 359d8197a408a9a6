package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingDependencyTemplate = errors.New("Formula dependency has no system template")
	ErrInvalidValue              = errors.New("Invalid value")
	ErrEvaluation                = errors.New("Formula evaluation failed")
	ErrNotDeletable              = errors.New("Column cannot be deleted")
	ErrNotEditable               = errors.New("Not editable")
	ErrDependentsExist           = errors.New("Other columns depend on this column")
	ErrUnknownDependency         = errors.New("Formula references an unknown column")
	ErrCyclicDependency          = errors.New("Formula would create a dependency cycle")
	ErrSchemaNotFound            = errors.New("Schema not found")
	ErrColumnNotFound            = errors.New("Column not found")
	ErrValueNotFound             = errors.New("Value not found")
	ErrUnknownTemplate           = errors.New("Column template not found")
	ErrUnknownConstraint         = errors.New("Constraint not found")
	ErrHoldingNotFound           = errors.New("Holding not found")
	ErrAssetNotFound             = errors.New("Asset not found")
	ErrAccountNotFound           = errors.New("Account not found")
	ErrPortfolioNotFound         = errors.New("Portfolio not found")
)

// InvalidValueError carries the specific reason an input was rejected.
type InvalidValueError struct {
	Column string
	Reason string
}

func (e *InvalidValueError) Error() string {
	if e.Column == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Column, e.Reason)
}

func (e *InvalidValueError) Unwrap() error { return ErrInvalidValue }

func Invalid(column, format string, args ...any) error {
	return &InvalidValueError{Column: column, Reason: fmt.Sprintf(format, args...)}
}

// DependentsExistError lists the columns whose formulas still read the column.
type DependentsExistError struct {
	Column     string
	Dependents []string
}

func (e *DependentsExistError) Error() string {
	return fmt.Sprintf("cannot delete %s: used by %s", e.Column, strings.Join(e.Dependents, ", "))
}

func (e *DependentsExistError) Unwrap() error { return ErrDependentsExist }

// MissingDependencyError names the identifier no template could provide.
type MissingDependencyError struct {
	Column     string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s depends on %s, which has no system template", e.Column, e.Dependency)
}

func (e *MissingDependencyError) Unwrap() error { return ErrMissingDependencyTemplate }
