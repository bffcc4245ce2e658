package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Model input errors
	ErrInvalidParameter  = errors.New("invalid distribution parameter")
	ErrUnknownFamily     = errors.New("unknown distribution family")
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// Stratification and metric errors
	ErrInvalidGroupCount  = errors.New("invalid group count")
	ErrInsufficientGroups = errors.New("insufficient groups for inequality gradient")
	ErrDivisionByZero     = errors.New("relative change denominator is zero")

	// Sampling errors
	ErrSingularCovariance = errors.New("covariance matrix is not positive semi-definite")

	// Simulation errors
	ErrNoSuccessfulIterations = errors.New("no successful iterations")
	ErrInvalidConfig          = errors.New("invalid run configuration")

	// Lookup errors
	ErrNotFound         = errors.New("resource not found")
	ErrAnalysisNotFound = fmt.Errorf("%w: analysis", ErrNotFound)

	// Determinism errors
	ErrSeedMismatch = errors.New("seed mismatch")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

func NewParameterError(family string, index int, value float64) error {
	return fmt.Errorf("%w: %s parameter %d = %v", ErrInvalidParameter, family, index, value)
}

func NewGroupCountError(nGroups int) error {
	return fmt.Errorf("%w: n_groups=%d (must be >= 1)", ErrInvalidGroupCount, nGroups)
}

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsModelError reports whether err stems from a malformed fitted model.
func IsModelError(err error) bool {
	return errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrUnknownFamily) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrSingularCovariance)
}

// IsComputationError reports whether err was raised by the deterministic
// stratify/metric/impact chain.
func IsComputationError(err error) bool {
	return errors.Is(err, ErrInvalidGroupCount) ||
		errors.Is(err, ErrInsufficientGroups) ||
		errors.Is(err, ErrDivisionByZero)
}

// ErrorKind returns a short stable label for the domain error wrapped in err.
// Used as a metric label and skip-count key.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, ErrInvalidGroupCount):
		return "invalid_group_count"
	case errors.Is(err, ErrInsufficientGroups):
		return "insufficient_groups"
	case errors.Is(err, ErrDivisionByZero):
		return "division_by_zero"
	case errors.Is(err, ErrSingularCovariance):
		return "singular_covariance"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrUnknownFamily):
		return "unknown_family"
	default:
		return "other"
	}
}
