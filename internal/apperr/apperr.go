// Package apperr defines the typed errors raised by the payment, ledger and
// session services. Handlers translate the Kind of an error into an HTTP
// status; everything below the handler layer only creates and wraps them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the boundary layer.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindBadRequest
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindConflict:
		return "CONFLICT"
	case KindUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// Error is a domain error carrying a kind, a machine readable code and a
// message that is safe to show to clients. Err holds the cause, if any, and
// is never rendered to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and code so sentinel values such as
// ErrInvalidOrExpiredToken work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Unauthorized(msg string) *Error { return newErr(KindUnauthorized, KindUnauthorized.String(), msg) }
func Forbidden(msg string) *Error    { return newErr(KindForbidden, KindForbidden.String(), msg) }
func NotFound(msg string) *Error     { return newErr(KindNotFound, KindNotFound.String(), msg) }
func BadRequest(msg string) *Error   { return newErr(KindBadRequest, KindBadRequest.String(), msg) }
func Conflict(msg string) *Error     { return newErr(KindConflict, KindConflict.String(), msg) }
func Unavailable(msg string) *Error  { return newErr(KindUnavailable, KindUnavailable.String(), msg) }

// WithCode overrides the machine readable code.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

// Sentinels shared across services.
var (
	ErrInvalidCredentials    = Unauthorized("invalid credentials")
	ErrInvalidToken          = Unauthorized("invalid or expired token").WithCode("INVALID_TOKEN")
	ErrInvalidOrExpiredToken = Unauthorized("invalid or expired reset token").WithCode("INVALID_OR_EXPIRED_TOKEN")
	ErrAccountBlocked        = Forbidden("account is blocked").WithCode("ACCOUNT_BLOCKED")
	ErrRoleMismatch          = Forbidden("role not permitted for this login").WithCode("ROLE_MISMATCH")
	ErrInsufficientBalance   = BadRequest("insufficient balance").WithCode("INSUFFICIENT_BALANCE")
	ErrProviderNotConfigured = BadRequest("payment provider is not configured").WithCode("PROVIDER_NOT_CONFIGURED")
	ErrPaymentVerification   = BadRequest("payment verification failed").WithCode("PAYMENT_VERIFICATION_FAILED")
)

// KindOf reports the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
