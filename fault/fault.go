package fault

import (
	"errors"
	"fmt"
)

// Code identifies a failure class of the backup subsystem.
type Code string

const (
	NoData             Code = "NO_DATA"
	StorageFull        Code = "STORAGE_FULL"
	InvalidFormat      Code = "INVALID_FORMAT"
	EncryptFailed      Code = "ENCRYPT_FAILED"
	DecryptFailed      Code = "DECRYPT_FAILED"
	NotFound           Code = "NOT_FOUND"
	Corrupted          Code = "CORRUPTED"
	Unauthorized       Code = "UNAUTHORIZED"
	RetentionViolation Code = "RETENTION_VIOLATION"
	RestoreFailed      Code = "RESTORE_FAILED"
	HealthError        Code = "HEALTH_ERROR"
)

// Conditions worth retrying later, as opposed to terminal ones.
var recoverable = map[Code]bool{
	StorageFull:   true,
	EncryptFailed: true,
	HealthError:   true,
}

type Error struct {
	Code  Code
	msg   string
	cause error
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code, so callers can test with
// errors.Is(err, &Error{Code: NotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) Recoverable() bool {
	return recoverable[e.Code]
}

// IsCode reports whether err or any error in its chain carries code.
func IsCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf returns the code of the outermost *Error in the chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// Recoverable reports whether err is a retry-later condition. Unknown errors
// are treated as terminal.
func Recoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Recoverable()
}
