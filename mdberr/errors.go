// Package mdberr defines the closed error model shared by every layer of
// the translator: a small set of stable codes embedded in the message as
// [mdb][E<n>] so callers can match on the code without importing internal
// types.
package mdberr

import "fmt"

// Code is one of the five stable error kinds. Callers and tests match on
// these values; do not renumber them.
type Code string

const (
	// E1 is an unsupported statement shape rejected at parse time, e.g. MERGE.
	E1 Code = "E1"
	// E2 is an unsupported feature caught during validation: non-equi join,
	// FULL OUTER/RIGHT JOIN, UNION without ALL, correlated subquery,
	// unsupported window usage.
	E2 Code = "E2"
	// E3 is a semantic guard violation: DELETE/UPDATE without WHERE.
	E3 Code = "E3"
	// E4 is a parameter arity or key-set mismatch.
	E4 Code = "E4"
	// E5 is an execution error surfaced from the store.
	E5 Code = "E5"
)

// Error is the single error type raised by the core. It always carries one
// of the five codes.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[mdb][%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error carrying code whose message is derived from err, and
// whose Unwrap returns err. Used at the store boundary to turn a driver
// error into E5 without losing its text.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: err.Error(), cause: err}
}

// Is reports whether err is an *Error carrying code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if me, ok := err.(*Error); ok {
			e = me
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Code == code
}
