// Package apperror defines the failure taxonomy shared by the service packages and mapped to
// HTTP responses by the server package.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad or empty input the caller can correct.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden marks an ownership violation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks an unknown resource.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks an unavailable or failing backing store.
	ErrStorage = errors.New("storage failure")
)

const genericStorageMessage = "an internal error occurred, please try again later"

// ServiceError carries a dotted operation code, a failure kind, a message that is safe to show
// to callers, and the underlying cause.
type ServiceError struct {
	code    string
	kind    error
	message string
	err     error
}

// New builds a ServiceError with code "<operation>.<reason>".
func New(operation, reason string, kind error, message string, cause error) *ServiceError {
	return &ServiceError{
		code:    fmt.Sprintf("%s.%s", operation, reason),
		kind:    kind,
		message: message,
		err:     cause,
	}
}

// Validation builds a validation failure.
func Validation(operation, reason, message string) *ServiceError {
	return New(operation, reason, ErrValidation, message, nil)
}

// Forbidden builds an ownership failure.
func Forbidden(operation, reason, message string) *ServiceError {
	return New(operation, reason, ErrForbidden, message, nil)
}

// NotFound builds a not-found failure.
func NotFound(operation, reason, message string) *ServiceError {
	return New(operation, reason, ErrNotFound, message, nil)
}

// Storage builds a storage failure. The cause is kept for logging only.
func Storage(operation, reason string, cause error) *ServiceError {
	return New(operation, reason, ErrStorage, genericStorageMessage, cause)
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is / errors.As.
func (e *ServiceError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the taxonomy sentinel.
func (e *ServiceError) Kind() error {
	return e.kind
}

// Message returns the caller-safe message.
func (e *ServiceError) Message() string {
	return e.message
}
