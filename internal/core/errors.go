package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOverlap              = errors.New("overlapping period")
	ErrOrdering             = errors.New("out of order period")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrValidation           = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrInvalidAmount        = errors.New("invalid amount")
)

type (
	// OverlapError is returned when an incoming period intersects a stored one.
	OverlapError struct {
		Incoming Range
		Existing PeriodID
		Against  Range
	}

	// OrderingError is returned when an append starts before the last stored period ends.
	OrderingError struct {
		Incoming time.Time
		LastEnd  time.Time
	}

	InsufficientDataError struct {
		Constraint string
		Need       int
		Have       int
	}

	InvalidConfigurationError struct {
		Field      string
		Constraint string
		Value      any
	}

	ValidationError struct {
		Field      string
		Constraint string
	}

	NotFoundError struct {
		ID PeriodID
	}
)

func (e *OverlapError) Error() string {
	return fmt.Sprintf("period [%s, %s) overlaps %s [%s, %s)",
		e.Incoming.From.Format(time.RFC3339), e.Incoming.To.Format(time.RFC3339),
		e.Existing, e.Against.From.Format(time.RFC3339), e.Against.To.Format(time.RFC3339))
}

func (e *OverlapError) Is(target error) bool { return target == ErrOverlap }

func (e *OrderingError) Error() string {
	return fmt.Sprintf("period starting %s precedes end of last stored period %s",
		e.Incoming.Format(time.RFC3339), e.LastEnd.Format(time.RFC3339))
}

func (e *OrderingError) Is(target error) bool { return target == ErrOrdering }

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s (need %d, have %d)", e.Constraint, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s (got %v)", e.Field, e.Constraint, e.Value)
}

func (e *InvalidConfigurationError) Is(target error) bool { return target == ErrInvalidConfiguration }

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Constraint)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("period %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ErrorKind names the error category for transport layers.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrOverlap):
		return "overlap"
	case errors.Is(err, ErrOrdering):
		return "ordering"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidAmount):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// IsCallerError reports whether err stems from the input rather than the system.
func IsCallerError(err error) bool {
	return ErrorKind(err) != "internal"
}
