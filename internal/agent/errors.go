package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/docreview/internal/apperr"
)

// contentLengthMarkers are substrings of provider error bodies that mean the
// request did not fit in the model's context window.
var contentLengthMarkers = []string{
	"maximum context length",
	"tokens_limit_reached",
	"context_length_exceeded",
	"many images",
	"prompt is too long",
	"exceeds the maximum number of tokens",
	"request too large",
}

type rateLimitError struct {
	body string
}

func (e *rateLimitError) Error() string { return "rate limited" }

type authError struct {
	message string
}

func (e *authError) Error() string {
	return "authentication error: " + e.message
}

// statusError is a non-2xx response that is neither a rate limit nor an
// auth failure.
type statusError struct {
	statusCode int
	body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.statusCode, e.body)
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}

// ContentLengthError means the input (or output) exceeded the model's
// context window. Callers recover by splitting the input.
type ContentLengthError struct {
	Agent string
	Err   error
}

func (e *ContentLengthError) Error() string {
	return fmt.Sprintf("agent %s: content length exceeded: %v", e.Agent, e.Err)
}

func (e *ContentLengthError) Unwrap() error { return e.Err }

// APIError is an upstream provider failure that is not a content-length
// overflow.
type APIError struct {
	Agent    string
	Provider string
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agent %s (%s): %v", e.Agent, e.Provider, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// NoObjectError means the model answered but no valid structured object
// could be decoded from its output.
type NoObjectError struct {
	Agent        string
	Text         string
	FinishReason FinishReason
	Err          error
}

func (e *NoObjectError) Error() string {
	return fmt.Sprintf("agent %s: no object generated (finish reason %s): %v", e.Agent, e.FinishReason, e.Err)
}

func (e *NoObjectError) Unwrap() error { return e.Err }

// IsContentLength reports whether err signals a context-window overflow,
// either from the provider or from the local request size guard.
func IsContentLength(err error) bool {
	if err == nil {
		return false
	}
	var cl *ContentLengthError
	if errors.As(err, &cl) {
		return true
	}
	return apperr.HasCode(err, apperr.CodeMessageTooLarge)
}

// IsAPIError reports whether err is an upstream API failure.
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

// IsNoObject reports whether err is a structured-output decode failure.
func IsNoObject(err error) bool {
	var ne *NoObjectError
	return errors.As(err, &ne)
}

func isContentLengthMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range contentLengthMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classify turns a raw provider error into the adapter's taxonomy.
func classify(agentID, provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isContentLengthMessage(err.Error()) {
		return &ContentLengthError{Agent: agentID, Err: err}
	}
	return &APIError{Agent: agentID, Provider: provider, Err: err}
}

func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// retryable is true for rate limits and 5xx responses. Everything else,
// including content-length failures reported as 400, returns immediately.
func retryable(err error) bool {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.statusCode >= 500 && !isContentLengthMessage(se.body)
	}
	return false
}

// checkStatus maps an HTTP status and body to the provider error types.
func checkStatus(statusCode int, body []byte) error {
	switch {
	case statusCode == 429:
		// Some gateways answer 429 for oversized requests.
		if isContentLengthMessage(string(body)) {
			return &statusError{statusCode: statusCode, body: string(body)}
		}
		return &rateLimitError{body: string(body)}
	case statusCode == 401 || statusCode == 403:
		return &authError{message: string(body)}
	case statusCode < 200 || statusCode > 299:
		return &statusError{statusCode: statusCode, body: string(body)}
	}
	return nil
}
