// Package errors defines the validator core's error taxonomy: a single
// typed Error carrying a stable code, so callers can match on Is/As without
// depending on message text.
package errors

import (
	"errors"
	"fmt"
)

// ERR enumerates the error taxonomy.
type ERR int32

const (
	ERR_UNKNOWN ERR = iota
	ERR_TRANSPORT_TIMEOUT
	ERR_VERIFICATION_FAILED
	ERR_MINER_HAS_NO_DATA
	ERR_METADATA_STORE_UNAVAILABLE
	ERR_CHAIN_UNAVAILABLE
	ERR_NOT_REGISTERED
	ERR_CONFIG_INVALID
)

var errName = map[ERR]string{
	ERR_UNKNOWN:                    "UNKNOWN",
	ERR_TRANSPORT_TIMEOUT:          "TRANSPORT_TIMEOUT",
	ERR_VERIFICATION_FAILED:        "VERIFICATION_FAILED",
	ERR_MINER_HAS_NO_DATA:          "MINER_HAS_NO_DATA",
	ERR_METADATA_STORE_UNAVAILABLE: "METADATA_STORE_UNAVAILABLE",
	ERR_CHAIN_UNAVAILABLE:          "CHAIN_UNAVAILABLE",
	ERR_NOT_REGISTERED:             "NOT_REGISTERED",
	ERR_CONFIG_INVALID:             "CONFIG_INVALID",
}

func (c ERR) String() string {
	if s, ok := errName[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// Error is the validator core's single error type.
type Error struct {
	Code       ERR
	Message    string
	WrappedErr error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.WrappedErr == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
}

// Is reports whether error codes match, walking the wrap chain.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var ue *Error
	if errors.As(target, &ue) && e.Code == ue.Code {
		return true
	}
	if e.WrappedErr != nil {
		return errors.Is(e.WrappedErr, target)
	}
	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// New builds an Error, optionally wrapping a trailing error argument and
// formatting the message with any remaining args (fmt.Sprintf-style).
func New(code ERR, message string, args ...interface{}) *Error {
	var wrapped error
	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok {
			wrapped = err
			args = args[:n-1]
		}
	}
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	return &Error{Code: code, Message: message, WrappedErr: wrapped}
}

// Is delegates to the standard library, so callers can use this package
// uniformly instead of importing "errors" alongside it.
func Is(err, target error) bool { return errors.Is(err, target) }

// As delegates to the standard library.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Join concatenates non-nil error messages; returns nil if all are nil.
func Join(errs ...error) error {
	var msgs []string
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	joined := msgs[0]
	for _, m := range msgs[1:] {
		joined += ", " + m
	}
	return errors.New(joined)
}
