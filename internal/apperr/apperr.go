// Package apperr carries the error taxonomy shared by the services and the
// HTTP layer. Services return *Error values; the HTTP layer turns them into a
// status code and a single JSON error shape.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuth          Kind = "auth"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindForbidden     Kind = "forbidden"
	KindClaim         Kind = "claim"
	KindUnprocessable Kind = "unprocessable"
	KindUpstream      Kind = "upstream"
	KindInternal      Kind = "internal"
)

const (
	CodeMissingCredential  = "missing_credential"
	CodeInvalidCredential  = "invalid_credential"
	CodeRateLimited        = "rate_limited"
	CodeInvalidToken       = "invalid_token"
	CodeAlreadyClaimed     = "already_claimed"
	CodeInvalidCode        = "invalid_code"
	CodePersistenceFailure = "persistence_failure"
	CodeContentFlagged     = "content_flagged"
)

type Error struct {
	Kind    Kind
	Code    string
	Status  int
	Message string
	// ResetAt is set on rate-limit errors.
	ResetAt time.Time
	// Categories lists moderation categories on flagged-content errors.
	Categories []string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and code so callers can compare against
// the exported sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

var (
	ErrMissingCredential = &Error{Kind: KindAuth, Code: CodeMissingCredential, Status: http.StatusUnauthorized, Message: "missing API key"}
	ErrInvalidCredential = &Error{Kind: KindAuth, Code: CodeInvalidCredential, Status: http.StatusUnauthorized, Message: "invalid API key"}
	ErrRateLimited       = &Error{Kind: KindAuth, Code: CodeRateLimited, Status: http.StatusTooManyRequests, Message: "rate limit exceeded"}

	ErrInvalidToken       = &Error{Kind: KindClaim, Code: CodeInvalidToken, Status: http.StatusNotFound, Message: "invalid claim token"}
	ErrAlreadyClaimed     = &Error{Kind: KindClaim, Code: CodeAlreadyClaimed, Status: http.StatusConflict, Message: "agent already claimed"}
	ErrInvalidCode        = &Error{Kind: KindClaim, Code: CodeInvalidCode, Status: http.StatusForbidden, Message: "invalid verification code"}
	ErrPersistenceFailure = &Error{Kind: KindClaim, Code: CodePersistenceFailure, Status: http.StatusInternalServerError, Message: "failed to claim agent"}
)

func RateLimited(resetAt time.Time) *Error {
	e := *ErrRateLimited
	e.ResetAt = resetAt
	return &e
}

func PersistenceFailure(err error) *Error {
	e := *ErrPersistenceFailure
	e.Err = err
	return &e
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: string(KindValidation), Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: string(KindNotFound), Status: http.StatusNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Code: string(KindConflict), Status: http.StatusConflict, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: string(KindForbidden), Status: http.StatusForbidden, Message: message}
}

func Flagged(categories []string) *Error {
	return &Error{
		Kind:       KindUnprocessable,
		Code:       CodeContentFlagged,
		Status:     http.StatusUnprocessableEntity,
		Message:    "content violates community guidelines",
		Categories: categories,
	}
}

func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: string(KindUpstream), Status: http.StatusInternalServerError, Message: message, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: string(KindInternal), Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

// From returns err as an *Error, wrapping anything unknown as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
