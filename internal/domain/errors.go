package domain

import (
	"errors"
	"fmt"
)

// Business-rule and lookup errors. Callers match them with errors.Is.
var (
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidSymbol        = errors.New("invalid symbol format")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrPositionNotFound     = errors.New("position not found")
	ErrPortfolioNotFound    = errors.New("portfolio not found")
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrStaleManualPrice     = errors.New("manual price is stale")
)

// ValidationError reports malformed input rejected before any state changes.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError builds a ValidationError wrapping an optional sentinel
func NewValidationError(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
