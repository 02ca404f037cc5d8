package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds surfaced by the collection state manager. Match them with errors.Is.
var (
	ErrFetchFailure      = errors.New("fetch failure")
	ErrWriteFailure      = errors.New("write failure")
	ErrDeleteFailure     = errors.New("delete failure")
	ErrValidationFailure = errors.New("validation failure")
)

// ErrRecordNotFound is returned by record stores when the addressed record does not exist.
var ErrRecordNotFound = errors.New("record not found")

// OperationError carries the context of a failed manager or store operation.
type OperationError struct {
	Kind       error
	Op         string
	Collection string
	RecordID   string
	Field      string
	Err        error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Collection != "" {
		fmt.Fprintf(&b, " collection=%s", e.Collection)
	}
	if e.RecordID != "" {
		fmt.Fprintf(&b, " id=%s", e.RecordID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field=%s", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the failure kind so callers can test errors.Is(err, ErrWriteFailure).
func (e *OperationError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap exposes the underlying cause.
func (e *OperationError) Unwrap() error { return e.Err }

// ErrNotFound reports a missing record for a store operation.
type ErrNotFound struct {
	Collection string
	ID         string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Collection, e.ID)
}

// Is lets ErrNotFound satisfy errors.Is(err, ErrRecordNotFound).
func (e ErrNotFound) Is(target error) bool {
	return target == ErrRecordNotFound
}
