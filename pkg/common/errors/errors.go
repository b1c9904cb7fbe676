package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the goevent library

var (
	// ErrNotFound indicates that no pipeline is bound to the requested identifier
	ErrNotFound = errors.New("pipeline not found")

	// ErrNilEngine indicates that an identifier is bound but holds no engine
	ErrNilEngine = errors.New("pipeline binding is empty")

	// ErrEmptyID indicates that an empty identifier was supplied
	ErrEmptyID = errors.New("identifier cannot be empty")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrCapacityExceeded indicates that a capacity limit was exceeded
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrAlreadyRunning indicates that a component was started twice
	ErrAlreadyRunning = errors.New("already running")
)

// IsLookupFailure returns true if the error is one of the two registry
// lookup failure conditions
func IsLookupFailure(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNilEngine)
}

// ValidationError describes an invalid argument or configuration value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError for the given module and field.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap makes ValidationError match ErrInvalidConfiguration via errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// IsValidationError returns true if the error is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// OperationError describes a failed operation within a module.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError wrapping the given cause.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches contextual detail and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// HandlerError wraps a recovered handler or callback panic with the pipeline
// and stage it occurred in. Ordinary handler errors are propagated as-is;
// HandlerError only carries failures the engine had to synthesize itself.
type HandlerError struct {
	Pipeline string
	Stage    string
	Cause    error
}

func (e *HandlerError) Error() string {
	if e.Pipeline == "" {
		return fmt.Sprintf("%s handler failed: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("pipeline %q: %s handler failed: %v", e.Pipeline, e.Stage, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}
