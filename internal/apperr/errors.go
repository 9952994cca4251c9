// internal/apperr/errors.go
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds shared by every store and service. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrDependencyFailure = errors.New("dependency failure")
)

var kinds = []error{
	ErrNotFound,
	ErrInvalidArgument,
	ErrInvalidState,
	ErrConflict,
	ErrResourceExhausted,
	ErrDependencyFailure,
}

// Error is a message tagged with one of the error kinds above.
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Is(target error) bool { return target == e.kind }

func (e *Error) Unwrap() error { return e.cause }

func newf(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

func InvalidArgument(format string, args ...any) error {
	return newf(ErrInvalidArgument, format, args...)
}

func InvalidState(format string, args ...any) error { return newf(ErrInvalidState, format, args...) }

func Conflict(format string, args ...any) error { return newf(ErrConflict, format, args...) }

func ResourceExhausted(format string, args ...any) error {
	return newf(ErrResourceExhausted, format, args...)
}

// DependencyFailure tags err (an unreachable collaborator) with the dependency kind.
func DependencyFailure(err error, format string, args ...any) error {
	return &Error{kind: ErrDependencyFailure, msg: fmt.Sprintf(format, args...), cause: err}
}

// Kind returns the sentinel err matches, or nil for untyped errors. The
// outermost *Error in the chain decides, so a dependency failure keeps its
// kind whatever its cause was.
func Kind(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// HTTPStatus maps an error kind to the response code used by the handlers.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidArgument:
		return http.StatusBadRequest
	case ErrInvalidState, ErrConflict:
		return http.StatusConflict
	case ErrResourceExhausted:
		return http.StatusUnprocessableEntity
	case ErrDependencyFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
