package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
)

func newTestOpenAI(url string) *OpenAI {
	return newOpenAI("gpt-4.1-mini",
		option.WithAPIKey("test-key"),
		option.WithBaseURL(url),
		option.WithMaxRetries(0),
	)
}

func TestOpenAI_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Missing or wrong Authorization header")
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if rf, ok := req["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
			t.Errorf("response_format = %v, want json_object", req["response_format"])
		}
		if !strings.Contains(string(body), "data:image/png;base64,aW1n") {
			t.Error("image part missing from request")
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4.1-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"a\":1}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":40,"completion_tokens":10,"total_tokens":50}}`)
	}))
	defer server.Close()

	resp, err := newTestOpenAI(server.URL).Generate(context.Background(), Request{
		System:  "sys",
		Message: Message{Text: "check", Images: []string{"aW1n"}},
		JSON:    true,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Content != `{"a":1}` {
		t.Errorf("Content = %q, want %q", resp.Content, `{"a":1}`)
	}
	if resp.FinishReason != FinishStop {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, FinishStop)
	}
	if resp.Usage.Total() != 50 {
		t.Errorf("Usage.Total() = %d, want 50", resp.Usage.Total())
	}
}

func TestOpenAI_ContextLengthExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(400)
		fmt.Fprint(w, `{"error":{"message":"This model's maximum context length is 128000 tokens.","type":"invalid_request_error","param":"messages","code":"context_length_exceeded"}}`)
	}))
	defer server.Close()

	_, err := newTestOpenAI(server.URL).Generate(context.Background(), Request{Message: Message{Text: "x"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsContentLength(classify("researcher", "openai", err)) {
		t.Errorf("expected content-length classification, got %v", err)
	}
}

func TestOpenAI_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(401)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer server.Close()

	_, err := newTestOpenAI(server.URL).Generate(context.Background(), Request{Message: Message{Text: "x"}})
	if !IsAuthError(err) {
		t.Errorf("Expected auth error, got: %v", err)
	}
}

func TestOpenAI_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[],"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	var deltas []string
	resp, err := newTestOpenAI(server.URL).Stream(context.Background(), Request{Message: Message{Text: "hi"}}, func(s string) error {
		deltas = append(deltas, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if strings.Join(deltas, "|") != "Hel|lo" {
		t.Errorf("deltas = %v, want [Hel lo]", deltas)
	}
	if resp.Content != "Hello" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello")
	}
	if resp.FinishReason != FinishStop {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, FinishStop)
	}
	if resp.Usage.Total() != 9 {
		t.Errorf("Usage.Total() = %d, want 9", resp.Usage.Total())
	}
}

func TestOpenAIFinish(t *testing.T) {
	tests := map[string]FinishReason{
		"stop":           FinishStop,
		"length":         FinishLength,
		"content_filter": FinishContentFilter,
		"tool_calls":     FinishOther,
	}
	for in, want := range tests {
		if got := openaiFinish(in); got != want {
			t.Errorf("openaiFinish(%q) = %q, want %q", in, got, want)
		}
	}
}
