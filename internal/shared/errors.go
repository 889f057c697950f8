package shared

import (
	"errors"
	"fmt"
)

// Kind classifies business failures so transports can map them consistently.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindMissingRelease      Kind = "missing_release_authorization"
	KindConflict            Kind = "conflicting_state"
	KindNotFound            Kind = "not_found"
	KindInternal            Kind = "internal"
)

// Error is a business error carrying a machine readable kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so callers can match against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrValidation matches any validation failure.
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	// ErrInsufficientStock matches requests exceeding available stock.
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	// ErrInsufficientBalance matches outbound requests exceeding the paid balance.
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "insufficient paid balance"}
	// ErrMissingRelease matches outbound requests on invoices without a release number.
	ErrMissingRelease = &Error{Kind: KindMissingRelease, Message: "missing release authorization"}
	// ErrConflict matches operations rejected by the current aggregate state.
	ErrConflict = &Error{Kind: KindConflict, Message: "conflicting state"}
	// ErrNotFound indicates resource not found.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
)

func newError(kind Kind, format string, args []any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a validation error.
func Validation(format string, args ...any) error {
	return newError(KindValidation, format, args)
}

// InsufficientStock builds an insufficient stock error.
func InsufficientStock(format string, args ...any) error {
	return newError(KindInsufficientStock, format, args)
}

// InsufficientBalance builds an insufficient balance error.
func InsufficientBalance(format string, args ...any) error {
	return newError(KindInsufficientBalance, format, args)
}

// MissingRelease builds a missing release authorization error.
func MissingRelease(format string, args ...any) error {
	return newError(KindMissingRelease, format, args)
}

// Conflict builds a conflicting state error.
func Conflict(format string, args ...any) error {
	return newError(KindConflict, format, args)
}

// NotFound builds a not found error.
func NotFound(format string, args ...any) error {
	return newError(KindNotFound, format, args)
}

// KindOf extracts the kind of err, defaulting to internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// UserSafeMessage returns a message suitable for API clients.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Error()
	}
	return "internal error, please retry"
}
