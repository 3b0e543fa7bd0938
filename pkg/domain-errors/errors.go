// Package domainerrors carries coded errors that cross the engine boundary.
// Codes decide how a failure is presented to the acting user; sentinel errors
// (pkg/platform/sentinel) stay inside the infrastructure layers.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	// CodeValidation: recoverable input failure, re-prompt the same step.
	CodeValidation Code = "validation"
	// CodeRateLimited: event rejected by the sliding-window gate.
	CodeRateLimited Code = "rate_limited"
	// CodeAlreadyDecided: a reviewer lost the decision race.
	CodeAlreadyDecided Code = "already_decided"
	// CodeForbidden: actor lacks the privilege the entry point requires.
	CodeForbidden Code = "forbidden"
	// CodeNotFound: the referenced entity is gone.
	CodeNotFound Code = "not_found"
	// CodeInternal: store or delivery trouble surfaced as retry-later.
	CodeInternal Code = "internal"
)

type Error struct {
	Code    Code
	Message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause while keeping the actor-facing code and message.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the domain code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the actor-facing message, without the code prefix
// Error() adds for logs.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "Сталася помилка. Спробуйте пізніше."
}
