package alpaca

import (
	"errors"
	"fmt"
)

// Alpaca error numbers
const (
	ErrNumNotImplemented       = 0x400
	ErrNumInvalidValue         = 0x401
	ErrNumValueNotSet          = 0x402
	ErrNumNotConnected         = 0x407
	ErrNumInvalidOperation     = 0x40B
	ErrNumActionNotImplemented = 0x40C
	ErrNumUnspecified          = 0x4FF
)

// Error is an Alpaca error reported in the ErrorNumber and ErrorMessage fields
// of a response.
type Error struct {
	Number  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("alpaca error 0x%X: %s", e.Number, e.Message)
}

// Is matches any *Error with the same number.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Number == t.Number
}

var (
	ErrNotImplemented         = &Error{ErrNumNotImplemented, "Property or method not implemented"}
	ErrPropertyNotImplemented = ErrNotImplemented
	ErrValueNotSet            = &Error{ErrNumValueNotSet, "Value not set"}
	ErrNotConnected           = &Error{ErrNumNotConnected, "Device is not connected"}
	ErrActionNotImplemented   = &Error{ErrNumActionNotImplemented, "Action not implemented"}
)

// InvalidValue returns an error for a rejected parameter value.
func InvalidValue(format string, args ...any) *Error {
	return &Error{ErrNumInvalidValue, fmt.Sprintf(format, args...)}
}

// InvalidOperation returns an error for a request the device cannot honor in
// its current state.
func InvalidOperation(format string, args ...any) *Error {
	return &Error{ErrNumInvalidOperation, fmt.Sprintf(format, args...)}
}

// asError converts any error into an Alpaca error. Errors that are not
// Alpaca errors are reported as unspecified.
func asError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{ErrNumUnspecified, err.Error()}
}
