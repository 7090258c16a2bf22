// Package apperr defines the typed failures returned by the storefront's
// services. The HTTP layer maps each Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindProductNotFound
	KindOrderNotFound
	KindLineNotFound
	KindDuplicateLine
	KindInsufficientStock
	KindInvalidState
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindProductNotFound:
		return "PRODUCT_NOT_FOUND"
	case KindOrderNotFound:
		return "ORDER_NOT_FOUND"
	case KindLineNotFound:
		return "LINE_NOT_FOUND"
	case KindDuplicateLine:
		return "DUPLICATE_LINE"
	case KindInsufficientStock:
		return "INSUFFICIENT_STOCK"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// Error is a rejected operation. Key identifies the offending entity (a
// product or order id) when there is one.
type Error struct {
	Kind    Kind
	Message string
	Key     string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same Kind, so callers can write
// errors.Is(err, apperr.InsufficientStock).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is matching.
var (
	InvalidInput      = &Error{Kind: KindInvalidInput}
	Unauthorized      = &Error{Kind: KindUnauthorized}
	Forbidden         = &Error{Kind: KindForbidden}
	NotFound          = &Error{Kind: KindNotFound}
	ProductNotFound   = &Error{Kind: KindProductNotFound}
	OrderNotFound     = &Error{Kind: KindOrderNotFound}
	LineNotFound      = &Error{Kind: KindLineNotFound}
	DuplicateLine     = &Error{Kind: KindDuplicateLine}
	InsufficientStock = &Error{Kind: KindInsufficientStock}
	InvalidState      = &Error{Kind: KindInvalidState}
	Conflict          = &Error{Kind: KindConflict}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithKey returns a copy of e carrying key.
func (e *Error) WithKey(key any) *Error {
	cp := *e
	cp.Key = fmt.Sprint(key)
	return &cp
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
