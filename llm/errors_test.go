package llm

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsServiceUnavailableError(t *testing.T) {
	err := NewServiceUnavailableError("overloaded", nil)
	if !IsServiceUnavailableError(err) {
		t.Error("Expected IsServiceUnavailableError to return true for 503 error")
	}
	if !IsRetryableError(err) {
		t.Error("Expected 503 error to be retryable")
	}

	if IsServiceUnavailableError(NewRateLimitError("rate limit", nil, nil)) {
		t.Error("Expected IsServiceUnavailableError to return false for rate limit error")
	}
}

func TestIsRequestTooLargeError(t *testing.T) {
	err := NewRequestTooLargeError("request too large", nil)
	if !IsRequestTooLargeError(err) {
		t.Error("Expected IsRequestTooLargeError to return true for request too large error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRequestTooLargeError(regularErr) {
		t.Error("Expected IsRequestTooLargeError to return false for non-request-too-large error")
	}
}

func TestIsRetryableError(t *testing.T) {
	retryableErr := NewRateLimitError("rate limit", nil, nil)
	if !IsRetryableError(retryableErr) {
		t.Error("Expected IsRetryableError to return true for retryable error")
	}

	nonRetryableErr := NewProviderError("some error", nil)
	if IsRetryableError(nonRetryableErr) {
		t.Error("Expected IsRetryableError to return false for non-retryable error")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewProviderError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := NewProviderError("wrapped", originalErr)
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected error to unwrap to original error")
	}
}

func TestFromStatusCode(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{name: "429", status: http.StatusTooManyRequests, wantType: ErrorTypeRateLimit, retryable: true},
		{name: "503", status: http.StatusServiceUnavailable, wantType: ErrorTypeServiceUnavailable, retryable: true},
		{name: "413", status: http.StatusRequestEntityTooLarge, wantType: ErrorTypeRequestTooLarge},
		{name: "400", status: http.StatusBadRequest, wantType: ErrorTypeInvalidRequest},
		{name: "502", status: http.StatusBadGateway, wantType: ErrorTypeProvider, retryable: true},
		{name: "401", status: http.StatusUnauthorized, wantType: ErrorTypeProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatusCode("test", tt.status, "boom", 0, nil)
			if err.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, err.Type)
			}
			if err.Retryable != tt.retryable {
				t.Errorf("Expected retryable=%v, got %v", tt.retryable, err.Retryable)
			}
		})
	}

	rl := FromStatusCode("test", http.StatusTooManyRequests, "slow down", 0, nil)
	if rl.RetryAfter == nil || *rl.RetryAfter != DefaultRetryAfter {
		t.Errorf("Expected default retry after %v, got %v", DefaultRetryAfter, rl.RetryAfter)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := ParseRetryAfter("30"); got != 30*time.Second {
		t.Errorf("Expected 30s, got %v", got)
	}
	if got := ParseRetryAfter(""); got != 0 {
		t.Errorf("Expected 0 for empty header, got %v", got)
	}
	if got := ParseRetryAfter("soon"); got != 0 {
		t.Errorf("Expected 0 for garbage, got %v", got)
	}
	future := time.Now().Add(2 * time.Minute).UTC().Format(http.TimeFormat)
	if got := ParseRetryAfter(future); got <= time.Minute || got > 2*time.Minute {
		t.Errorf("Expected ~2m for HTTP date, got %v", got)
	}
}
