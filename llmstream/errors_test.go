package llmstream

import (
	"errors"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		wantType  string
		retryable bool
	}{
		{400, "InvalidRequestError", false},
		{401, "AuthenticationError", false},
		{403, "AccessDeniedError", false},
		{404, "NotFoundError", false},
		{408, "RequestTimeoutError", true},
		{413, "ContextLengthError", false},
		{422, "InvalidRequestError", false},
		{429, "RateLimitError", true},
		{500, "ServerError", true},
		{502, "ServerError", true},
		{503, "ServerError", true},
		{504, "ServerError", true},
		{418, "ProviderError", true},
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "test error", "openai", "", nil)
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, got, tt.retryable)
		}

		var ok bool
		switch tt.wantType {
		case "InvalidRequestError":
			_, ok = err.(*InvalidRequestError)
		case "AuthenticationError":
			_, ok = err.(*AuthenticationError)
		case "AccessDeniedError":
			_, ok = err.(*AccessDeniedError)
		case "NotFoundError":
			_, ok = err.(*NotFoundError)
		case "RequestTimeoutError":
			_, ok = err.(*RequestTimeoutError)
		case "ContextLengthError":
			_, ok = err.(*ContextLengthError)
		case "RateLimitError":
			_, ok = err.(*RateLimitError)
		case "ServerError":
			_, ok = err.(*ServerError)
		case "ProviderError":
			_, ok = err.(*ProviderError)
		}
		if !ok {
			t.Errorf("status %d: expected %s, got %T", tt.status, tt.wantType, err)
		}
	}
}

func TestErrorFromStatusCodeRetryAfter(t *testing.T) {
	retryAfter := 12.5
	err := ErrorFromStatusCode(429, "slow down", "openai", "rate_limited", &retryAfter)
	rl, ok := err.(*RateLimitError)
	if !ok {
		t.Fatalf("expected RateLimitError, got %T", err)
	}
	if rl.RetryAfter == nil || *rl.RetryAfter != 12.5 {
		t.Errorf("expected RetryAfter 12.5, got %v", rl.RetryAfter)
	}
	if rl.ErrorCode != "rate_limited" {
		t.Errorf("expected error code rate_limited, got %q", rl.ErrorCode)
	}
}

func TestIsRetryableDefaults(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if !IsRetryable(errors.New("some transient thing")) {
		t.Error("unknown errors should default to retryable")
	}
	if IsRetryable(&ConfigurationError{SDKError: SDKError{Message: "bad config"}}) {
		t.Error("configuration errors should not be retryable")
	}
	if IsRetryable(&AbortError{SDKError: SDKError{Message: "cancelled"}}) {
		t.Error("abort errors should not be retryable")
	}
	if !IsRetryable(&NetworkError{SDKError: SDKError{Message: "conn refused"}}) {
		t.Error("network errors should be retryable")
	}
	if !IsRetryable(&StreamError{SDKError: SDKError{Message: "broken stream"}}) {
		t.Error("stream errors should be retryable")
	}
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &NetworkError{SDKError: SDKError{Message: "request failed", Cause: cause}}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}
