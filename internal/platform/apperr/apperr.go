// Package apperr defines the error kinds the authentication engine surfaces to callers.
// Each error carries a message key that the outer layer resolves to localized text.
package apperr

import (
	"errors"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindNotAcceptable
	KindBadRequest
	KindServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotAcceptable:
		return "not_acceptable"
	case KindBadRequest:
		return "bad_request"
	case KindServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal"
	}
}

// Error is a classified error with a message key (e.g. "auth.otp-incorrect").
type Error struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Key + ": " + e.Err.Error()
	}
	return e.Key
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind with no cause.
func New(kind Kind, key string) *Error {
	return &Error{Kind: kind, Key: key}
}

// Wrap returns an Error of the given kind that keeps err as its cause.
func Wrap(kind Kind, key string, err error) *Error {
	return &Error{Kind: kind, Key: key, Err: err}
}

func NotFound(key string) *Error           { return New(KindNotFound, key) }
func Conflict(key string) *Error           { return New(KindConflict, key) }
func Unauthorized(key string) *Error       { return New(KindUnauthorized, key) }
func NotAcceptable(key string) *Error      { return New(KindNotAcceptable, key) }
func BadRequest(key string) *Error         { return New(KindBadRequest, key) }
func ServiceUnavailable(key string) *Error { return New(KindServiceUnavailable, key) }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// KeyOf returns the message key of the first *Error in err's chain, or "internal-error".
func KeyOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Key != "" {
		return e.Key
	}
	return "internal-error"
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
