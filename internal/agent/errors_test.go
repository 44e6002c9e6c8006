package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dshills/docreview/internal/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		contentLength bool
		api           bool
	}{
		{"max context", &statusError{statusCode: 400, body: "This model's maximum context length is 8192"}, true, false},
		{"tokens limit", &statusError{statusCode: 413, body: `{"code":"tokens_limit_reached"}`}, true, false},
		{"context exceeded code", errors.New(`code: context_length_exceeded`), true, false},
		{"too many images", &statusError{statusCode: 400, body: "Too many images in request"}, true, false},
		{"gemini tokens", errors.New("input token count exceeds the maximum number of tokens allowed"), true, false},
		{"server error", &statusError{statusCode: 500, body: "boom"}, false, true},
		{"auth", &authError{message: "bad key"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("a", "p", tt.err)
			if IsContentLength(got) != tt.contentLength {
				t.Errorf("IsContentLength = %v, want %v", IsContentLength(got), tt.contentLength)
			}
			if IsAPIError(got) != tt.api {
				t.Errorf("IsAPIError = %v, want %v", IsAPIError(got), tt.api)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

func TestClassify_ContextErrorsPassThrough(t *testing.T) {
	err := fmt.Errorf("sending request: %w", context.Canceled)
	if got := classify("a", "p", err); got != err {
		t.Errorf("classify(canceled) = %v, want unchanged", got)
	}
}

func TestIsContentLength_MessageTooLarge(t *testing.T) {
	err := fmt.Errorf("chunk 2: %w", apperr.New(apperr.CodeMessageTooLarge, "too big", false))
	if !IsContentLength(err) {
		t.Error("MESSAGE_TOO_LARGE should count as content length")
	}
	if IsContentLength(nil) {
		t.Error("nil is not a content-length error")
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(&APIError{Err: &authError{message: "x"}}) {
		t.Error("wrapped auth error not detected")
	}
	if IsAuthError(errors.New("other")) {
		t.Error("plain error reported as auth error")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&rateLimitError{}, true},
		{&statusError{statusCode: 503, body: "unavailable"}, true},
		{&statusError{statusCode: 400, body: "bad"}, false},
		{&statusError{statusCode: 500, body: "maximum context length"}, false},
		{&authError{}, false},
		{errors.New("x"), false},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCheckStatus(t *testing.T) {
	if err := checkStatus(200, nil); err != nil {
		t.Errorf("checkStatus(200) = %v, want nil", err)
	}
	var rl *rateLimitError
	if err := checkStatus(429, []byte("slow down")); !errors.As(err, &rl) {
		t.Errorf("checkStatus(429) = %T, want *rateLimitError", err)
	}
	var se *statusError
	if err := checkStatus(429, []byte("tokens_limit_reached")); !errors.As(err, &se) {
		t.Errorf("checkStatus(429 oversized) = %T, want *statusError", err)
	}
	if err := checkStatus(403, []byte("nope")); !IsAuthError(err) {
		t.Errorf("checkStatus(403) = %T, want auth error", err)
	}
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), 3, func() error {
		calls++
		return &authError{message: "bad"}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !IsAuthError(err) {
		t.Errorf("err = %v, want auth error", err)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := retryWithBackoff(ctx, 3, func() error { return &rateLimitError{} })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
