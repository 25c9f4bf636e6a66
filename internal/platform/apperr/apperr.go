// Package apperr classifies domain failures into a closed set of kinds that callers and the HTTP layer switch on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure class of an Error.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindChallenge           Kind = "challenge"
	KindUpstreamRateLimited Kind = "upstream_rate_limited"
	KindRateLimited         Kind = "rate_limited"
	KindPeerResolution      Kind = "peer_resolution"
	KindRejected            Kind = "rejected"
	KindSessionCorrupt      Kind = "session_corrupt"
	KindConfiguration       Kind = "configuration"
	KindInternal            Kind = "internal"
)

// Error is a classified failure: a kind, a stable machine code, a human message and an optional retry hint.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// RetryAfter is the advised wait in whole seconds; zero means no hint.
	RetryAfter int
	Err        error
}

// New returns an Error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap returns an Error of the given kind carrying err as its cause.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// WithRetryAfter returns a copy of e carrying a retry hint in seconds.
func (e *Error) WithRetryAfter(seconds int) *Error {
	cp := *e
	if seconds < 0 {
		seconds = 0
	}
	cp.RetryAfter = seconds
	return &cp
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an Error of kind k.
func IsKind(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation, KindPeerResolution, KindRejected:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindChallenge:
		return http.StatusForbidden
	case KindUpstreamRateLimited, KindRateLimited:
		return http.StatusTooManyRequests
	case KindSessionCorrupt:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Internal wraps an unclassified error.
func Internal(err error) *Error {
	return Wrap(err, KindInternal, "internal_error", "Internal error.")
}

// TenantNotFound is the shared 404 for unknown tenant ids.
func TenantNotFound() *Error {
	return New(KindNotFound, "tenant_not_found", "Tenant not found.")
}

// FloodWait is the shared upstream rate-limit error.
func FloodWait(seconds int) *Error {
	return New(KindUpstreamRateLimited, "flood_wait",
		fmt.Sprintf("Telegram rate limit. Retry after %d seconds.", seconds)).WithRetryAfter(seconds)
}
