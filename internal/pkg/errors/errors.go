package errors

import "errors"

var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrTransactionConflict = errors.New("transaction conflict")
)

type Error struct {
	Err     error
	Message string
	Code    string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
		Code:    "INTERNAL_ERROR",
	}
}
