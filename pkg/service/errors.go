package service

import (
	"errors"
	"fmt"

	"form-analytics/pkg/repository"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorUnauthorized ErrorCode = "unauthorized"
)

// Error is a failure the caller can act on; anything else is internal
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &Error{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error  { return &Error{Code: ErrorNotFound, Message: msg} }
func NewForbiddenError(msg string) error { return &Error{Code: ErrorForbidden, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &Error{Code: ErrorUnauthorized, Message: msg}
}

func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// notFoundOr turns repository.ErrNotFound into a not_found error and wraps
// everything else
func notFoundOr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return NewNotFoundError(what + " not found")
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
