package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"maintline/internal/repo"
	"maintline/internal/workflow"
)

type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindPolicy     Kind = "policy"
	KindInternal   Kind = "internal"
)

// Error is the failure type returned by every engine operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindInternal {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind onto the HTTP status code of the API.
func (e *Error) Status() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindPolicy:
		return http.StatusMethodNotAllowed
	}
	return http.StatusInternalServerError
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error   { return newError(KindNotFound, format, args...) }
func validation(format string, args ...any) error { return newError(KindValidation, format, args...) }
func policy(format string, args ...any) error     { return newError(KindPolicy, format, args...) }

func internal(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the kind of err; anything that is not an *Error is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// classify turns storage and workflow errors into engine errors. what names the
// entity for not-found messages.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	var e *Error
	switch {
	case errors.As(err, &e):
		return err
	case errors.Is(err, repo.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: what + " not found", Err: err}
	case errors.Is(err, repo.ErrConflict):
		return &Error{Kind: KindConflict, Message: err.Error(), Err: err}
	case errors.Is(err, repo.ErrInsufficientStock):
		return &Error{Kind: KindPolicy, Message: err.Error(), Err: err}
	case errors.Is(err, repo.ErrStale):
		return &Error{Kind: KindPolicy, Message: what + " was modified concurrently", Err: err}
	case errors.Is(err, workflow.ErrCannotUpdate), errors.Is(err, workflow.ErrNotDeletable):
		return &Error{Kind: KindPolicy, Message: err.Error(), Err: err}
	case errors.Is(err, workflow.ErrInvalidPayload):
		return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	}
	return internal("storage failure", err)
}

// ParseCode reads a numeric entity code from a path segment.
func ParseCode(s string) (int64, error) {
	code, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || code <= 0 {
		return 0, validation("invalid code %q", s)
	}
	return code, nil
}
