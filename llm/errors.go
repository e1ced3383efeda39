package llm

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

// ErrMissingCredentials is returned when no API key is configured for a
// provider and pricing tier.
var ErrMissingCredentials = errors.New("missing credentials")

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeServiceUnavailable ErrorType = "service_unavailable"
	ErrorTypeRequestTooLarge    ErrorType = "request_too_large"
	ErrorTypeInvalidRequest     ErrorType = "invalid_request"
	ErrorTypeProvider           ErrorType = "provider"
	ErrorTypeNetwork            ErrorType = "network"
	ErrorTypeTimeout            ErrorType = "timeout"
	ErrorTypeUnknown            ErrorType = "unknown"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsServiceUnavailableError checks if an error is a 503 from the provider.
func IsServiceUnavailableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeServiceUnavailable
	}
	return false
}

// IsRequestTooLargeError checks if an error is a request too large error.
func IsRequestTooLargeError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeRequestTooLarge
	}
	return false
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		StatusCode:  http.StatusTooManyRequests,
		ProviderErr: providerErr,
	}
}

// NewServiceUnavailableError creates a new service unavailable error.
func NewServiceUnavailableError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeServiceUnavailable,
		Message:     message,
		Retryable:   true,
		StatusCode:  http.StatusServiceUnavailable,
		ProviderErr: providerErr,
	}
}

// NewRequestTooLargeError creates a new request too large error.
func NewRequestTooLargeError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRequestTooLarge,
		Message:     message,
		Retryable:   false,
		StatusCode:  http.StatusRequestEntityTooLarge,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new provider error.
func NewProviderError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// FromStatusCode maps an HTTP status from any provider onto the neutral
// error taxonomy. Adapters call it after unwrapping their SDK error type.
func FromStatusCode(provider string, statusCode int, message string, retryAfter time.Duration, providerErr error) *Error {
	switch statusCode {
	case http.StatusTooManyRequests:
		if retryAfter <= 0 {
			retryAfter = DefaultRetryAfter
		}
		return NewRateLimitError(provider+" rate limit: "+message, &retryAfter, providerErr)
	case http.StatusServiceUnavailable:
		return NewServiceUnavailableError(provider+" service unavailable: "+message, providerErr)
	case http.StatusRequestEntityTooLarge:
		return NewRequestTooLargeError(provider+" request too large: "+message, providerErr)
	case http.StatusBadRequest:
		return &Error{
			Type:        ErrorTypeInvalidRequest,
			Message:     provider + " invalid request: " + message,
			StatusCode:  statusCode,
			ProviderErr: providerErr,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &Error{
			Type:        ErrorTypeProvider,
			Message:     provider + " server error: " + message,
			Retryable:   true,
			StatusCode:  statusCode,
			ProviderErr: providerErr,
		}
	default:
		return &Error{
			Type:        ErrorTypeProvider,
			Message:     provider + " API error: " + message,
			StatusCode:  statusCode,
			ProviderErr: providerErr,
		}
	}
}

// DefaultRetryAfter is used for rate limits when the provider does not say
// how long to wait.
const DefaultRetryAfter = 60 * time.Second

// ParseRetryAfter reads a Retry-After header value given either as seconds or
// as an HTTP date. It returns 0 when the value is empty or unparseable.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if retryTime, err := http.ParseTime(value); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}
	return 0
}
