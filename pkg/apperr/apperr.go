// Package apperr defines the error kinds surfaced by the ledger and loan
// engines. Callers distinguish failures with KindOf or errors.Is against the
// Err* sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and transports.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInsufficientFunds
	KindInsufficientStock
	KindConflict
)

// String returns the stable code used in API responses.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// Sentinels usable with errors.Is.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInternal          = &Error{Kind: KindInternal}
)

// Error is a classified failure. Entity names the record type involved
// ("account", "loan", ...) and Field the offending input, when known.
type Error struct {
	Kind    Kind
	Entity  string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of entity or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Validation reports bad input on field.
func Validation(field, format string, args ...any) error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing record.
func NotFound(entity string, id any) error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// InsufficientFunds reports a debit larger than the available balance.
func InsufficientFunds(accountID int64, balance, amount fmt.Stringer) error {
	return &Error{
		Kind:    KindInsufficientFunds,
		Entity:  "account",
		Message: fmt.Sprintf("account %d balance %s is less than %s", accountID, balance, amount),
	}
}

// InsufficientStock reports an outbound movement larger than stock on hand.
func InsufficientStock(entity string, productID int64, available, requested int64) error {
	return &Error{
		Kind:    KindInsufficientStock,
		Entity:  entity,
		Message: fmt.Sprintf("product %d has %d in stock, %d requested", productID, available, requested),
	}
}

// Conflict reports an operation that collides with existing state.
func Conflict(entity, format string, args ...any) error {
	return &Error{Kind: KindConflict, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a storage or infrastructure failure.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Message: op, Err: err}
}

// Wrap passes classified errors through and wraps anything else as Internal.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(op, err)
}
