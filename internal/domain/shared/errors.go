package shared

import (
	"errors"
	"fmt"
)

// Error codes used across the fulfillment pipeline
const (
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodePreconditionFailed  = "PRECONDITION_FAILED"
	CodeConflict            = "CONFLICT"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodePersistence         = "PERSISTENCE_ERROR"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches another DomainError by code so sentinels work with errors.Is
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidTransition   = NewDomainError(CodeInvalidTransition, "Transition not allowed")
	ErrPreconditionFailed  = NewDomainError(CodePreconditionFailed, "Precondition failed")
	ErrConflict            = NewDomainError(CodeConflict, "Operation conflicts with current state")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrPersistence         = NewDomainError(CodePersistence, "Persistence failure")
)

// NewInvalidTransitionError reports a transition outside the adjacency graph
func NewInvalidTransitionError(from, to string) *DomainError {
	return NewDomainError(CodeInvalidTransition, fmt.Sprintf("Cannot transition from %s to %s", from, to))
}

// NewPreconditionError reports a missing precondition
func NewPreconditionError(message string) *DomainError {
	return NewDomainError(CodePreconditionFailed, message)
}

// NewConflictError reports a state conflict
func NewConflictError(message string) *DomainError {
	return NewDomainError(CodeConflict, message)
}

// WrapPersistence wraps a store failure. Domain errors pass through unchanged.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return &DomainError{
		Code:    CodePersistence,
		Message: fmt.Sprintf("failed to %s", op),
		cause:   err,
	}
}

// HasCode reports whether err is a DomainError carrying code
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
