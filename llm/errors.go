package llm

import "fmt"

// ClientError is the base error type for all llm errors.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// TransportError is a network-level failure: the request never produced
// an HTTP status (DNS, connection reset, TLS, etc.).
type TransportError struct{ ClientError }

// APIError is a non-2xx status returned by an LLM provider.
type APIError struct {
	ClientError
	Provider   string
	StatusCode int
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete API error subtypes.

type AuthError struct{ APIError }
type InvalidRequestError struct{ APIError }
type ContextLengthError struct{ APIError }
type ServerError struct{ APIError }

// RateLimitError carries the provider's Retry-After hint in seconds,
// when present.
type RateLimitError struct {
	APIError
	RetryAfter *float64
}

// MalformedResponseError is a 2xx reply whose payload could not be
// decoded. Raw preserves the offending payload for diagnostics.
type MalformedResponseError struct {
	ClientError
	Raw string
}

// RequestTimeoutError is a request that exceeded its deadline.
type RequestTimeoutError struct{ ClientError }

// AbortError is a request cancelled by the caller's context.
type AbortError struct{ ClientError }

// ConfigError is a client misconfiguration (unknown provider, missing
// key); never retryable.
type ConfigError struct{ ClientError }

// FromStatusCode maps an HTTP status code to the appropriate typed error.
func FromStatusCode(statusCode int, message, provider string, retryAfter *float64) error {
	ae := APIError{
		ClientError: ClientError{Message: message},
		Provider:    provider,
		StatusCode:  statusCode,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{APIError: ae}
	case 401, 403:
		return &AuthError{APIError: ae}
	case 408:
		return &RequestTimeoutError{ClientError: ae.ClientError}
	case 413:
		return &ContextLengthError{APIError: ae}
	case 429:
		ae.Retryable = true
		return &RateLimitError{APIError: ae, RetryAfter: retryAfter}
	case 500, 502, 503, 504:
		ae.Retryable = true
		return &ServerError{APIError: ae}
	default:
		// Unknown statuses default to retryable.
		ae.Retryable = true
		return &ae
	}
}

// IsRetryable reports whether the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *AuthError, *InvalidRequestError, *ContextLengthError, *ConfigError:
		return false
	case *MalformedResponseError, *AbortError:
		return false
	case *RateLimitError, *ServerError, *TransportError, *RequestTimeoutError:
		return true
	case *APIError:
		return e.Retryable
	default:
		// Unknown errors default to retryable.
		return true
	}
}
