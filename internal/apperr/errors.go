// Package apperr holds the error taxonomy shared by the service, the task
// handlers and the HTTP layer.
package apperr

import (
	"errors"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrValidationFailed    = errors.New("validation failed")
	ErrConstraintViolation = errors.New("constraint violation")
)

// NotFoundError names the entity that failed to resolve. Its message is the
// exact client-facing text, e.g. "Chat not found".
type NotFoundError struct {
	Entity string
}

func NotFound(entity string) *NotFoundError {
	return &NotFoundError{Entity: entity}
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidArgumentError is a missing or blank required input, rejected
// before any allocation or side effect.
type InvalidArgumentError struct {
	Message string
}

func InvalidArgument(msg string) *InvalidArgumentError {
	return &InvalidArgumentError{Message: msg}
}

func (e *InvalidArgumentError) Error() string { return e.Message }

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// ValidationError carries every violated model constraint.
type ValidationError struct {
	Errors []string
}

func Validation(errs ...string) *ValidationError {
	return &ValidationError{Errors: errs}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }
