// Package apierr normalizes every failure a store can observe into a small set
// of kinds that callers can branch on with errors.Is.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNetwork         Kind = "NETWORK"
	KindAuthentication  Kind = "UNAUTHENTICATED"
	KindApplication     Kind = "APPLICATION"
	KindNotMatched      Kind = "NOT_MATCHED"
	KindDuplicateAction Kind = "DUPLICATE_ACTION"
)

// Error is the normalized error returned by the gateway and the stores.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Fields  map[string][]string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets the package sentinels match any error of the same kind. NotMatched is
// a specialization of Application, so it also matches ErrApplication.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel() {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindApplication && (e.Kind == KindNotMatched || e.Kind == KindDuplicateAction)
}

func (e *Error) sentinel() bool {
	return e.Message == "" && e.Status == 0 && e.Code == "" && e.Cause == nil
}

// Sentinels for errors.Is.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNetwork         = &Error{Kind: KindNetwork}
	ErrAuthentication  = &Error{Kind: KindAuthentication}
	ErrApplication     = &Error{Kind: KindApplication}
	ErrNotMatched      = &Error{Kind: KindNotMatched}
	ErrDuplicateAction = &Error{Kind: KindDuplicateAction}
)

// Validation reports a locally rejected input. No request was sent.
func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// Network wraps a transport failure where no response was received.
func Network(cause error) error {
	return &Error{Kind: KindNetwork, Message: "network error: unable to reach server", Cause: cause}
}

// Authentication reports a 401. The stored credential has already been purged.
func Authentication(message string) error {
	if message == "" {
		message = "session expired, please log in again"
	}
	return &Error{Kind: KindAuthentication, Status: http.StatusUnauthorized, Message: message}
}

// Application reports a non-2xx server response carrying a message.
func Application(status int, code, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "request failed"
	}
	return &Error{Kind: KindApplication, Status: status, Code: code, Message: message}
}

// NotMatched converts a 403 on message send into the dedicated kind.
func NotMatched(cause error) error {
	msg := "you can only message users you have matched with"
	var e *Error
	if errors.As(cause, &e) && e.Message != "" && e.Message != http.StatusText(http.StatusForbidden) {
		msg = e.Message
	}
	return &Error{Kind: KindNotMatched, Status: http.StatusForbidden, Message: msg, Cause: cause}
}

// DuplicateAction marks a server rejection that means the action already took effect.
func DuplicateAction(cause error) error {
	e := &Error{Kind: KindDuplicateAction, Message: "action already applied", Cause: cause}
	var app *Error
	if errors.As(cause, &app) {
		e.Status = app.Status
		e.Code = app.Code
		e.Message = app.Message
	}
	return e
}

// KindOf returns the kind of err, or "" when err is not normalized.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Message returns the user-facing message stores record in their error field.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
