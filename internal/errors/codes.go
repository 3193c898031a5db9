// Package errors defines the closed set of engine error kinds and their
// mapping onto HTTP responses.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies every error surfaced by the assignment engine
type Kind int

const (
	// KindInternal covers storage and transport failures; callers may retry
	KindInternal Kind = iota
	// KindValidation is missing or malformed input
	KindValidation
	// KindNotFound means a referenced entity does not exist
	KindNotFound
	// KindCapacityExceeded is a business-rule rejection, never a bug
	KindCapacityExceeded
)

// String returns the metric/log label for the kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	default:
		return "internal"
	}
}

// IsClient reports whether errors of this kind are the caller's fault
func (k Kind) IsClient() bool {
	return k != KindInternal
}

// kinded is implemented by every error type in this package
type kinded interface {
	error
	Kind() Kind
}

// ValidationError reports a missing or malformed input field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Kind implements kinded
func (e *ValidationError) Kind() Kind { return KindValidation }

// NotFoundError reports that a referenced technician or request is absent
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Kind implements kinded
func (e *NotFoundError) Kind() Kind { return KindNotFound }

// CapacityExceededError is returned when an assignment would push a
// technician's total complexity over Limit
type CapacityExceededError struct {
	TechnicianID string
	Current      int
	Attempted    int
	Limit        int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded for technician %s: current %d, attempted %d, new total %d, limit %d",
		e.TechnicianID, e.Current, e.Attempted, e.NewTotal(), e.Limit)
}

// Kind implements kinded
func (e *CapacityExceededError) Kind() Kind { return KindCapacityExceeded }

// NewTotal is the total the rejected operation would have produced
func (e *CapacityExceededError) NewTotal() int {
	return e.Current + e.Attempted
}

// InternalError wraps a storage or infrastructure failure
type InternalError struct {
	Op    string
	Cause error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return e.Op
}

// Unwrap returns the underlying error
func (e *InternalError) Unwrap() error { return e.Cause }

// Kind implements kinded
func (e *InternalError) Kind() Kind { return KindInternal }

// Convenience constructors

func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func TechnicianNotFound(id string) *NotFoundError {
	return &NotFoundError{Entity: "technician", ID: id}
}

func RequestNotFound(id string) *NotFoundError {
	return &NotFoundError{Entity: "request", ID: id}
}

func CapacityExceeded(technicianID string, current, attempted, limit int) *CapacityExceededError {
	return &CapacityExceededError{
		TechnicianID: technicianID,
		Current:      current,
		Attempted:    attempted,
		Limit:        limit,
	}
}

func Internal(op string, cause error) *InternalError {
	return &InternalError{Op: op, Cause: cause}
}

// KindOf classifies err. Anything that is not one of this package's types is
// treated as internal.
func KindOf(err error) Kind {
	var k kinded
	if stderrors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// IsKind reports whether err classifies as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// AsCapacityExceeded extracts capacity details from err
func AsCapacityExceeded(err error) (*CapacityExceededError, bool) {
	var ce *CapacityExceededError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
