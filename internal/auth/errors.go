package auth

import (
	"errors"
)

// ErrorKind classifies failures the HTTP boundary must translate.
type ErrorKind int

const (
	KindUnauthorized ErrorKind = iota + 1
	KindForbidden
	KindConflict
	KindTooManyRequests
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "unknown"
	}
}

// Error is the result type returned by Service for expected failures.
// ClearSession tells the transport to drop both session cookies.
type Error struct {
	Kind         ErrorKind
	Reason       string
	ClearSession bool
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "auth: " + e.Reason + ": " + e.Err.Error()
	}
	return "auth: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind and reason, so wrapped copies of a
// sentinel still compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// withCause returns a copy of the sentinel carrying err for logging.
func (e *Error) withCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// clearing returns a copy of the sentinel that also clears the session.
func (e *Error) clearing() *Error {
	cp := *e
	cp.ClearSession = true
	return &cp
}

var (
	ErrEmailTaken         = &Error{Kind: KindConflict, Reason: "email already registered"}
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Reason: "invalid email or password"}
	ErrEmailNotVerified   = &Error{Kind: KindUnauthorized, Reason: "email not verified"}
	ErrInvalidToken       = &Error{Kind: KindUnauthorized, Reason: "invalid or expired token"}
	ErrRefreshReused      = &Error{Kind: KindUnauthorized, Reason: "refresh token reuse detected", ClearSession: true}
	ErrSessionInvalid     = &Error{Kind: KindUnauthorized, Reason: "session invalid", ClearSession: true}
	ErrAdminRequired      = &Error{Kind: KindForbidden, Reason: "admin role required"}
	ErrSetupComplete      = &Error{Kind: KindConflict, Reason: "setup already completed"}
	ErrRateLimited        = &Error{Kind: KindTooManyRequests, Reason: "too many requests, try again later"}
)

// AsError extracts the *Error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
