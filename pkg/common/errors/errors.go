// Package errors carries the module's typed error values. Failures that
// cross a package boundary are wrapped here so callers can branch on the
// failure class (timeout, rejection, transport, ...) without matching on
// message text.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies a failure. Codes survive wrapping: CodeOf walks the
// chain and returns the first explicit classification it finds.
type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeTimeout       Code = "timeout"
	CodeRejected      Code = "rejected"
	CodeNotConnected  Code = "not_connected"
	CodeSessionClosed Code = "session_closed"
	CodeCredential    Code = "credential"
	CodeSubscription  Code = "subscription"
	CodeNotFound      Code = "not_found"
	CodePeerNotFound  Code = "peer_not_found"
	CodeStorage       Code = "storage"
)

// DomainError is the concrete error type used across the module.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match two domain errors by code.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if stderrors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}

// New returns an unclassified domain error.
func New(message string) error {
	return &DomainError{Code: CodeUnknown, Message: message}
}

// Newf returns an unclassified domain error with a formatted message.
func Newf(format string, args ...interface{}) error {
	return &DomainError{Code: CodeUnknown, Message: fmt.Sprintf(format, args...)}
}

// NewWithCode returns a classified domain error.
func NewWithCode(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Wrap annotates err with message. The wrapped error keeps the original
// classification. Wrapping nil returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: CodeOf(err), Message: message, Err: err}
}

// WrapWithCode annotates err and reclassifies it.
func WrapWithCode(code Code, err error, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, Err: err}
}

// CodeOf reports the classification of err, CodeUnknown when err carries
// none.
func CodeOf(err error) Code {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}

// HasCode reports whether err is classified as code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Is and As re-export the standard helpers so call sites importing this
// package do not need a second errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
