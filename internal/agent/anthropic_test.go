package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAnthropic(url string, client *http.Client) *Anthropic {
	return &Anthropic{
		apiKey:  "test-key",
		model:   "claude-sonnet-4-6",
		baseURL: url,
		client:  client,
	}
}

func TestAnthropic_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("Missing API key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Error("Missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Fatalf("expected one message with image and text blocks, got %+v", req.Messages)
		}
		if req.Messages[0].Content[0].Type != "image" || req.Messages[0].Content[0].Source.Data != "aW1n" {
			t.Errorf("first block = %+v, want base64 image", req.Messages[0].Content[0])
		}

		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []anthropicBlock{{Type: "text", Text: `{"ok":true}`}},
			StopReason: "end_turn",
			Usage:      anthropicUsage{InputTokens: 100, OutputTokens: 10},
		})
	}))
	defer server.Close()

	a := newTestAnthropic(server.URL, server.Client())
	resp, err := a.Generate(context.Background(), Request{
		System:  "test",
		Message: Message{Text: "test", Images: []string{"aW1n"}},
		JSON:    true,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Content != `{"ok":true}` {
		t.Errorf("Content = %q, want %q", resp.Content, `{"ok":true}`)
	}
	if resp.FinishReason != FinishStop {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, FinishStop)
	}
	if resp.Usage.Total() != 110 {
		t.Errorf("Usage.Total() = %d, want 110", resp.Usage.Total())
	}
}

func TestAnthropic_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer server.Close()

	a := newTestAnthropic(server.URL, server.Client())
	_, err := a.Generate(context.Background(), Request{System: "test", Message: Message{Text: "test"}})
	if err == nil {
		t.Fatal("Expected auth error")
	}
	if !IsAuthError(err) {
		t.Errorf("Expected auth error, got: %v", err)
	}
}

func TestAnthropic_PromptTooLong(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(400)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long: 250000 tokens > 200000 maximum"}}`))
	}))
	defer server.Close()

	a := newTestAnthropic(server.URL, server.Client())
	_, err := a.Generate(context.Background(), Request{System: "test", Message: Message{Text: "test"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (400 is not retried)", calls)
	}
	if classified := classify("reviewer", "anthropic", err); !IsContentLength(classified) {
		t.Errorf("classify(%v) is not a content-length error", err)
	}
}

func TestAnthropicFinish(t *testing.T) {
	tests := map[string]FinishReason{
		"end_turn":      FinishStop,
		"stop_sequence": FinishStop,
		"max_tokens":    FinishLength,
		"refusal":       FinishContentFilter,
		"tool_use":      FinishOther,
	}
	for in, want := range tests {
		if got := anthropicFinish(in); got != want {
			t.Errorf("anthropicFinish(%q) = %q, want %q", in, got, want)
		}
	}
}
