package acquisition

import (
	"errors"
	"fmt"
)

// ErrorCode classifies acquisition failures.
type ErrorCode string

// ErrorCode constants.
const (
	ErrCodeHardware     ErrorCode = "HARDWARE_ERROR"
	ErrCodeNotSupported ErrorCode = "NOT_SUPPORTED"
	ErrCodeBusy         ErrorCode = "BUSY"
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrHardware     = &Error{Code: ErrCodeHardware, Message: "hardware error"}
	ErrNotSupported = &Error{Code: ErrCodeNotSupported, Message: "not supported"}
	ErrBusy         = &Error{Code: ErrCodeBusy, Message: "acquisition in progress"}
	ErrInvalidValue = &Error{Code: ErrCodeInvalidValue, Message: "invalid value"}
)

// Error is returned synchronously by every engine operation that fails.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func newError(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
