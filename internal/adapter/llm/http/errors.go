package http

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error that occurred.
type ErrorType int

const (
	ErrTypeAuthentication ErrorType = iota
	ErrTypeRateLimit
	ErrTypeServiceUnavailable
	ErrTypeInvalidRequest
	ErrTypeTimeout
	ErrTypeMalformed
	ErrTypeUnknown
)

// String returns a human-readable description of the error type.
func (e ErrorType) String() string {
	switch e {
	case ErrTypeAuthentication:
		return "authentication error"
	case ErrTypeRateLimit:
		return "rate limit exceeded"
	case ErrTypeServiceUnavailable:
		return "service unavailable"
	case ErrTypeInvalidRequest:
		return "invalid request"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeMalformed:
		return "malformed response"
	default:
		return "unknown error"
	}
}

// RateLimitInfo carries provider-supplied rate-limit metadata. RetryAfter
// is the provider's reset hint; Remaining is the number of requests left
// in the provider's window when known. Callers use the hint to back off
// exactly instead of guessing.
type RateLimitInfo struct {
	RetryAfter time.Duration
	Remaining  int
	Limit      int
}

// Error represents an LLM client error with provider context. Each
// provider client performs classification at its boundary; nothing above
// the client inspects provider-specific error shapes.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Provider   string
	RateLimit  *RateLimitInfo
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s (status: %d)", e.Provider, e.Type.String(), e.Message, e.StatusCode)
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// RetryAfterHint returns the provider-supplied reset hint, or zero when
// the provider gave none.
func (e *Error) RetryAfterHint() time.Duration {
	if e.RateLimit == nil {
		return 0
	}
	return e.RateLimit.RetryAfter
}

// NewAuthenticationError creates a new authentication error.
func NewAuthenticationError(provider, message string) *Error {
	return &Error{
		Type:       ErrTypeAuthentication,
		Message:    message,
		StatusCode: 401,
		Retryable:  false,
		Provider:   provider,
	}
}

// NewRateLimitError creates a new rate limit error. info may be nil when
// the provider supplied no reset metadata.
func NewRateLimitError(provider, message string, info *RateLimitInfo) *Error {
	return &Error{
		Type:       ErrTypeRateLimit,
		Message:    message,
		StatusCode: 429,
		Retryable:  true,
		Provider:   provider,
		RateLimit:  info,
	}
}

// NewServiceUnavailableError creates a new service unavailable error.
func NewServiceUnavailableError(provider, message string) *Error {
	return &Error{
		Type:       ErrTypeServiceUnavailable,
		Message:    message,
		StatusCode: 503,
		Retryable:  true,
		Provider:   provider,
	}
}

// NewInvalidRequestError creates a new invalid request error.
func NewInvalidRequestError(provider, message string) *Error {
	return &Error{
		Type:       ErrTypeInvalidRequest,
		Message:    message,
		StatusCode: 400,
		Retryable:  false,
		Provider:   provider,
	}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(provider, message string) *Error {
	return &Error{
		Type:      ErrTypeTimeout,
		Message:   message,
		Retryable: true,
		Provider:  provider,
	}
}

// NewMalformedError creates an error for an unparseable provider
// response. Never retryable: the request succeeded, the payload did not.
func NewMalformedError(provider, message string) *Error {
	return &Error{
		Type:      ErrTypeMalformed,
		Message:   message,
		Retryable: false,
		Provider:  provider,
	}
}
