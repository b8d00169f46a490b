// Package apperr defines the error kinds the reservation core reports. Every
// error that reaches a caller carries a kind and a human readable message.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Validation        Kind = "ValidationError"
	NotFound          Kind = "NotFound"
	Unauthorized      Kind = "Unauthorized"
	Forbidden         Kind = "Forbidden"
	CapacityExceeded  Kind = "CapacityExceeded"
	DiscountInvalid   Kind = "DiscountInvalid"
	DiscountExhausted Kind = "DiscountExhausted"
	StateConflict     Kind = "StateConflict"
	CascadeBlocked    Kind = "CascadeBlocked"
	RateLimited       Kind = "RateLimited"
	Internal          Kind = "Internal"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation        = &Error{Kind: Validation}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrUnauthorized      = &Error{Kind: Unauthorized}
	ErrForbidden         = &Error{Kind: Forbidden}
	ErrCapacityExceeded  = &Error{Kind: CapacityExceeded}
	ErrDiscountInvalid   = &Error{Kind: DiscountInvalid}
	ErrDiscountExhausted = &Error{Kind: DiscountExhausted}
	ErrStateConflict     = &Error{Kind: StateConflict}
	ErrCascadeBlocked    = &Error{Kind: CascadeBlocked}
)

type Error struct {
	Kind    Kind
	Message string
	// Count is the number of blocking records for CascadeBlocked.
	Count int64
	Err   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to a lower level error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Blocked builds a CascadeBlocked error carrying the number of blocking records.
func Blocked(count int64, message string) *Error {
	return &Error{Kind: CascadeBlocked, Message: message, Count: count}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the message of the first *Error in err's chain.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

// Retryable reports whether a client may repeat the request unchanged, or
// with fewer participants or no discount code, without losing data.
func Retryable(err error) bool {
	switch KindOf(err) {
	case CapacityExceeded, DiscountExhausted:
		return true
	}
	return false
}
