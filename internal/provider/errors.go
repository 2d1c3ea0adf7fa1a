package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy shared by all providers.
type ErrorCategory string

const (
	// ErrorTimeout indicates the source took too long to answer.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorCanceled indicates the caller gave up before the source answered.
	// It says nothing about the source.
	ErrorCanceled ErrorCategory = "canceled"

	// ErrorOutage indicates the source is unreachable.
	ErrorOutage ErrorCategory = "provider_outage"

	// ErrorBadData indicates the source returned rows that could not be decoded.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorContractMismatch indicates the query does not fit the dataset,
	// e.g. a filter on a column the dataset does not have.
	ErrorContractMismatch ErrorCategory = "contract_mismatch"

	// ErrorNotFound indicates the dataset does not exist.
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorInternal indicates an unexpected internal error.
	ErrorInternal ErrorCategory = "internal"
)

// ErrProviderUnavailable is reached through errors.Is for outages and timeouts.
var ErrProviderUnavailable = errors.New("provider unavailable")

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrProviderRegistered  = errors.New("provider already registered")
	ErrInvalidQuery        = errors.New("invalid query")
	ErrUnsupportedOperator = errors.New("unsupported operator")
)

// Error wraps provider failures with normalized categorization.
type Error struct {
	Category   ErrorCategory
	ProviderID string
	Dataset    string
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s] %s: %s: %v", e.ProviderID, e.Category, e.Dataset, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s] %s: %s", e.ProviderID, e.Category, e.Dataset, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is reports outages and timeouts as ErrProviderUnavailable.
func (e *Error) Is(target error) bool {
	if target != ErrProviderUnavailable {
		return false
	}
	return e.Category == ErrorTimeout || e.Category == ErrorOutage
}

// NewError creates a normalized provider error.
func NewError(category ErrorCategory, providerID, dataset, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		ProviderID: providerID,
		Dataset:    dataset,
		Message:    message,
		Underlying: underlying,
	}
}

// ContextError classifies a fetch that stopped because ctx is done. A
// passed deadline is a timeout; a cancellation belongs to the caller.
func ContextError(providerID, dataset, message string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorCanceled, providerID, dataset, message, err)
	}
	return NewError(ErrorTimeout, providerID, dataset, message, err)
}

// GetCategory extracts the error category from an error.
func GetCategory(err error) ErrorCategory {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}
