// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrMissingPrice      = errors.New("missing option price: need at least one of PX_BID, PX_MID, PX_ASK")
	ErrInvalidIntervals  = errors.New("interval count must be at least 2")
	ErrNoUsableLegs      = errors.New("no usable legs: nothing to aggregate")
	ErrNoEvaluationDates = errors.New("no evaluation dates")
	ErrInvalidSpot       = errors.New("spot price must be positive")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrSymbolNotFound    = errors.New("symbol not found")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrTimeout           = errors.New("operation timed out")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDatabaseError     = errors.New("database error")
	ErrInputValidation   = errors.New("input validation failed")
)

// ProviderError represents an error from the market-data provider.
type ProviderError struct {
	Provider string
	Security string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error [%s] %s: %s: %v", e.Provider, e.Security, e.Message, e.Err)
	}
	return fmt.Sprintf("provider error [%s] %s: %s", e.Provider, e.Security, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, security, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Security: security,
		Message:  message,
		Err:      err,
	}
}

// LegError represents a failure confined to one leg of a strategy. It never
// aborts the aggregation of the remaining legs.
type LegError struct {
	Index int
	Leg   string
	Err   error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("leg %d (%s): %v", e.Index+1, e.Leg, e.Err)
}

func (e *LegError) Unwrap() error {
	return e.Err
}

// NewLegError creates a new LegError.
func NewLegError(index int, leg string, err error) *LegError {
	return &LegError{
		Index: index,
		Leg:   leg,
		Err:   err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets callers match any validation failure with ErrInputValidation.
func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Key      string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Key, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Key, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, key, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Key:      key,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
