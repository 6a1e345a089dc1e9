package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning signals a re-entrant attempt to process an upload
	// that is already processing or terminal.
	ErrAlreadyRunning = errors.New("upload is already being processed")

	// ErrInvalidReference signals an entity name that cannot be resolved or
	// created: empty, or longer than the entity's column bound.
	ErrInvalidReference = errors.New("invalid entity reference")

	// ErrReferentialViolation signals an attempt to delete or rename an
	// entity that existing metrics still reference.
	ErrReferentialViolation = errors.New("entity is referenced by existing metrics")
)

type RowErrorKind string

const (
	MissingField     RowErrorKind = "missing_field"
	InvalidValue     RowErrorKind = "invalid_value"
	InvalidTimestamp RowErrorKind = "invalid_timestamp"
)

// RowError is a recoverable, per-row failure. The pipeline counts these and
// moves on; they never abort the batch.
type RowError struct {
	Line   int
	Kind   RowErrorKind
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d: %s %s: %v", e.Line, e.Kind, e.Column, e.Err)
	}
	return fmt.Sprintf("row %d: %s %s", e.Line, e.Kind, e.Column)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

func rowErrorf(line int, kind RowErrorKind, column, format string, args ...any) *RowError {
	return &RowError{Line: line, Kind: kind, Column: column, Err: fmt.Errorf(format, args...)}
}
