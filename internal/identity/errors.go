package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredColumn aborts a run: a source lacks a column a pass depends on.
	ErrMissingRequiredColumn = errors.New("missing required column")
	// ErrInvalidPlan aborts a run: the plan is malformed or inconsistent with its inputs.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrAmbiguousDirectoryKey marks a duplicate directory key. It is reported, never returned.
	ErrAmbiguousDirectoryKey = errors.New("ambiguous directory key")
)

// ColumnError names the source and column that are missing.
type ColumnError struct {
	Source string
	Column string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("%s: %s %q", e.Source, ErrMissingRequiredColumn, e.Column)
}

func (e *ColumnError) Unwrap() error {
	return ErrMissingRequiredColumn
}

func planError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPlan, fmt.Sprintf(format, args...))
}
