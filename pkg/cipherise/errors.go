package cipherise

import (
	"github.com/forticode/cipherise-sdk-go/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("cipherise: error")

	// ErrIncompatibleServer flags servers whose product or major version the SDK does not support.
	ErrIncompatibleServer = errorFlag("cipherise: incompatible server")

	// ErrSecurity flags trust violations: key binding or payload envelope signature mismatches.
	// These are never downgraded to an authentication Failure outcome.
	ErrSecurity = errorFlag("cipherise: security violation")

	// ErrMissingPrecondition flags protocol calls issued before the step that populates their inputs.
	ErrMissingPrecondition = errorFlag("cipherise: missing precondition")

	// ErrPayloadDataLengthExceeded flags payloads too large for the negotiated ceiling,
	// detected before any network I/O.
	ErrPayloadDataLengthExceeded = errorFlag("cipherise: payload data length exceeded")

	// ErrSerialization flags session snapshots that fail header/arity/version validation.
	ErrSerialization = errorFlag("cipherise: invalid serialized session")

	noError = errorFlag("")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if Error == self || noError == self {
		return nil
	} else {
		return Error
	}
}

// newError returns a utils.RaisedErr{} that contains file & line of where it was called.
func newError(msg string, args ...any) error {
	return utils.NewError(1, Error, msg, args...)
}

// wrapError returns a utils.RaisedErr{} that contains file & line of where it was called.
func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, Error, msg, args...)
}

// newFlagError returns a utils.RaisedErr{} carrying flag instead of the package base Error.
func newFlagError(flag error, msg string, args ...any) error {
	return utils.NewError(1, flag, msg, args...)
}

// wrapFlagError returns a utils.RaisedErr{} carrying flag instead of the package base Error.
func wrapFlagError(cause error, flag error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, flag, msg, args...)
}
