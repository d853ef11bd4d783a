package transport

import (
	"github.com/forticode/cipherise-sdk-go/internal/utils"
)

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error = errorFlag("transport: error")

	// ErrTimeout flags proxy/gateway timeouts and unexpectedly empty responses.
	ErrTimeout = errorFlag("transport: request timeout")

	// ErrSessionExpired flags server rejections of the presented session token.
	ErrSessionExpired = errorFlag("transport: session expired")

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

// flagError returns a utils.RaisedErr{} carrying flag instead of the package base Error.
func flagError(flag error, msg string, args ...any) error {
	return utils.NewError(1, flag, msg, args...)
}
