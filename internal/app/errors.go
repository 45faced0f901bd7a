/**
 * @description
 * Error kinds surfaced by the send page. Every failure the page reports is an
 * *Error carrying one of four kinds, which the HTTP layer maps to a status.
 */

package app

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a user-visible failure. None of them are fatal to the
// page and none are retried automatically.
type ErrorKind string

const (
	// KindValidation: the form is malformed; nothing was sent.
	KindValidation ErrorKind = "validation"
	// KindResolution: the PayID could not be resolved; the form stays editable.
	KindResolution ErrorKind = "resolution"
	// KindSubmission: the backend refused or failed the request; no stream was opened.
	KindSubmission ErrorKind = "submission"
	// KindStream: the status stream failed; the displayed stage is frozen.
	KindStream ErrorKind = "stream"
)

// Error is a failure surfaced to the user.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func validationf(format string, args ...interface{}) *Error {
	return newError(KindValidation, fmt.Errorf(format, args...))
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

var (
	ErrSubmitInProgress = errors.New("a payment is already being submitted")
	ErrNothingToReturn  = errors.New("there is no payment to return")
	ErrNotReturnable    = errors.New("only SETTLED or CONFIRMED payments can be returned")
	ErrUnknownPayee     = errors.New("registered PayID not found")
	// ErrSessionReset is returned when a request completes after the session
	// it was made for has been reset. Its result is dropped.
	ErrSessionReset = errors.New("session was reset while the request was in flight")
)
