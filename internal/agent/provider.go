package agent

import (
	"context"
	"fmt"
)

// FinishReason is the provider-neutral reason a generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
)

// Message is the user payload of one model call. Images are base64 PNG.
type Message struct {
	Text   string
	Images []string
}

// Size returns the payload size in bytes.
func (m Message) Size() int {
	n := len(m.Text)
	for _, img := range m.Images {
		n += len(img)
	}
	return n
}

// Request is one model call as seen by a provider.
type Request struct {
	Agent       string
	System      string
	Message     Message
	MaxTokens   int
	Temperature float64
	JSON        bool
}

// Usage counts tokens for one call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

// Response is the raw provider output.
type Response struct {
	Content      string
	FinishReason FinishReason
	Usage        Usage
}

// Provider is the model backend abstraction.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Streamer is implemented by providers that can deliver output incrementally.
// onDelta is called with each text fragment in order.
type Streamer interface {
	Stream(ctx context.Context, req Request, onDelta func(string) error) (Response, error)
}

// Options carries provider construction settings that do not come from
// the environment.
type Options struct {
	OpenAIBaseURL  string
	VertexProject  string
	VertexLocation string
}

// MaxRequestBytes returns the request size limit the provider's API enforces,
// or 0 when none is known. Larger messages fail before they are sent.
func MaxRequestBytes(provider string) int {
	switch provider {
	case "anthropic":
		return 32 << 20
	case "gemini", "vertex", "google":
		return 20 << 20
	default:
		return 0
	}
}

// New creates a provider by name.
func New(ctx context.Context, provider, model string, opts Options) (Provider, error) {
	switch provider {
	case "anthropic":
		return NewAnthropic(model)
	case "openai":
		return NewOpenAI(model, opts.OpenAIBaseURL)
	case "gemini", "vertex", "google":
		return NewVertex(ctx, model, opts.VertexProject, opts.VertexLocation)
	case "ollama", "lmstudio":
		return NewOllama(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
