package fx

import (
	"errors"
	"fmt"
)

var (
	ErrNoFxRate    = errors.New("No FX rate available")
	ErrInvalidRate = errors.New("FX rate must be greater than zero")
)

// NoRateError names the pair that could not be converted.
type NoRateError struct {
	From string
	To   string
}

func (e *NoRateError) Error() string {
	return fmt.Sprintf("no FX rate from %s to %s", e.From, e.To)
}

func (e *NoRateError) Unwrap() error { return ErrNoFxRate }
