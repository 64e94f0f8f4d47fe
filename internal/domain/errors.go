package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind categorises an error for the retry policy. Classification is
// carried on the error itself rather than inferred from message text.
type ErrorKind int

const (
	// KindUnknown marks an error that carries no category; treated as
	// transient by default.
	KindUnknown ErrorKind = iota
	// KindTransient covers timeouts, connection resets and 5xx responses.
	KindTransient
	// KindRateLimited covers 429 responses and quota exhaustion.
	KindRateLimited
	// KindNonRetryable covers 4xx client errors and invalid input; retrying
	// cannot help.
	KindNonRetryable
	// KindProviderDown marks a provider judged unavailable; callers go
	// straight to fallback.
	KindProviderDown
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindNonRetryable:
		return "non_retryable"
	case KindProviderDown:
		return "provider_down"
	default:
		return "unknown"
	}
}

// ProviderError tags a failure from an external provider with its origin,
// HTTP status (when one exists) and retry category.
type ProviderError struct {
	Provider Provider
	Status   int
	Kind     ErrorKind
	cause    error
}

// NewProviderError wraps cause with provider identity and a retry category.
func NewProviderError(p Provider, status int, kind ErrorKind, cause error) *ProviderError {
	return &ProviderError{Provider: p, Status: status, Kind: kind, cause: cause}
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.Status, e.cause)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.cause)
}

func (e *ProviderError) Unwrap() error { return e.cause }

// KindFromStatus maps an HTTP status code to a retry category.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindTransient
	case status >= 400:
		return KindNonRetryable
	default:
		return KindUnknown
	}
}

// Classify resolves the retry category of err. Precedence: explicit
// ProviderError tag, then sentinel identity, then network shape; anything
// unrecognised is treated as transient so a single odd failure still gets a
// retry.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != KindUnknown {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrParse):
		return KindNonRetryable
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrBreakerOpen):
		return KindRateLimited
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderDown
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, context.Canceled):
		return KindNonRetryable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTransient
	}
	return KindTransient
}

// Retryable reports whether an error of this kind may be retried against the
// same provider.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited || k == KindUnknown
}
