package review

import (
	"errors"
	"fmt"

	llmhttp "github.com/bkyoung/review-engine/internal/adapter/llm/http"
)

// ErrorKind is the machine-readable classification a caller uses to
// decide between "try again later", "upgrade your plan" and "nothing to
// review".
type ErrorKind string

const (
	KindRateLimit     ErrorKind = "rate_limit"
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	KindNoCodeFiles   ErrorKind = "no_code_files"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindUnknown       ErrorKind = "unknown"
)

// Error is the typed failure surfaced to callers of the review service.
// RateLimit carries provider reset metadata when the failure was a rate
// limit, so a front end can render an accurate retry hint.
type Error struct {
	Kind      ErrorKind
	Message   string
	RateLimit *llmhttp.RateLimitInfo
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is implements error matching on kind for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError constructs a typed review error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// classifyProviderError translates a provider-boundary error into the
// caller-facing taxonomy after retries are exhausted.
func classifyProviderError(err error) *Error {
	var httpErr *llmhttp.Error
	if errors.As(err, &httpErr) {
		switch httpErr.Type {
		case llmhttp.ErrTypeRateLimit:
			return &Error{
				Kind:      KindRateLimit,
				Message:   httpErr.Message,
				RateLimit: httpErr.RateLimit,
			}
		case llmhttp.ErrTypeAuthentication:
			return &Error{Kind: KindUnauthorized, Message: httpErr.Message}
		default:
			return &Error{Kind: KindUnknown, Message: httpErr.Message}
		}
	}
	return &Error{Kind: KindUnknown, Message: err.Error()}
}
