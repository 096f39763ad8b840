package service

import (
	"errors"
	"fmt"

	"github.com/Dan9191/credit-network/internal/repository"
)

// Kind classifies a service error for transport mapping
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindRateLimited
	KindUnauthorized
)

var kindCodes = map[Kind]string{
	KindInternal:     "INTERNAL",
	KindValidation:   "VALIDATION_ERROR",
	KindNotFound:     "NOT_FOUND",
	KindConflict:     "CONFLICT",
	KindForbidden:    "FORBIDDEN",
	KindRateLimited:  "RATE_LIMITED",
	KindUnauthorized: "UNAUTHORIZED",
}

// Code returns the machine readable code of the kind
func (k Kind) Code() string {
	return kindCodes[k]
}

// Error is a rejection the caller can act on
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any // Extra fields rendered next to the message, e.g. tier and limit
	err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause of internal errors
func (e *Error) Unwrap() error {
	return e.err
}

// With attaches a detail field
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func notFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", err: err}
}

// IsKind reports whether err is a service error of kind k
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}

// isDuplicate reports whether err comes from a unique constraint violation
func isDuplicate(err error) bool {
	return errors.Is(err, repository.ErrDuplicate)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
