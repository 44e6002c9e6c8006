package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dshills/docreview/internal/apperr"
)

// Definition describes a named agent: its standing instructions and
// generation limits.
type Definition struct {
	ID           string
	Instructions string
	MaxTokens    int
	Temperature  float64
}

// Recorder receives one observation per model call.
type Recorder interface {
	RecordLLMCall(ctx context.Context, agentID, status string, d time.Duration, usage Usage)
}

// Runtime resolves agents by id and performs model calls through a
// Provider.
type Runtime struct {
	provider        Provider
	maxRequestBytes int
	logger          *slog.Logger
	recorder        Recorder

	mu     sync.RWMutex
	agents map[string]Definition
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(rt *Runtime) { rt.logger = l }
}

// WithRecorder sets the call metrics recorder.
func WithRecorder(r Recorder) RuntimeOption {
	return func(rt *Runtime) { rt.recorder = r }
}

// WithMaxRequestBytes rejects messages larger than n bytes before they are
// sent. Zero disables the guard.
func WithMaxRequestBytes(n int) RuntimeOption {
	return func(rt *Runtime) { rt.maxRequestBytes = n }
}

// NewRuntime creates a runtime over p with the given agents registered.
func NewRuntime(p Provider, defs []Definition, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		provider: p,
		logger:   slog.New(slog.DiscardHandler),
		agents:   make(map[string]Definition, len(defs)),
	}
	for _, o := range opts {
		o(rt)
	}
	rt.Register(defs...)
	return rt
}

// Register adds or replaces agent definitions.
func (rt *Runtime) Register(defs ...Definition) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, d := range defs {
		rt.agents[d.ID] = d
	}
}

// Agent returns the definition registered under id.
func (rt *Runtime) Agent(id string) (Definition, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	d, ok := rt.agents[id]
	if !ok {
		return Definition{}, apperr.New(apperr.CodeAgentNotFound, fmt.Sprintf("agent %q is not registered", id), false)
	}
	return d, nil
}

// ProviderName returns the name of the backing provider.
func (rt *Runtime) ProviderName() string { return rt.provider.Name() }

// CallOptions are the per-call inputs besides the message.
type CallOptions struct {
	// Settings is appended to the agent instructions. Call sites render
	// their typed settings into it.
	Settings string
	// Schema is a JSON schema the structured output must satisfy.
	Schema map[string]any
}

// Judgment is the uniform success verdict for a finish reason.
type Judgment struct {
	Success bool
	Reason  string
}

// JudgeFinish classifies a finish reason. Only stop is a success; the rest
// are left for the caller to recover from.
func JudgeFinish(fr FinishReason) Judgment {
	switch fr {
	case FinishStop:
		return Judgment{Success: true}
	case FinishLength:
		return Judgment{Reason: "output truncated at the token limit"}
	case FinishContentFilter:
		return Judgment{Reason: "response blocked by the content filter"}
	case FinishError:
		return Judgment{Reason: "model reported an error"}
	default:
		return Judgment{Reason: fmt.Sprintf("generation stopped unexpectedly (%s)", fr)}
	}
}

// Result is the outcome of one agent call.
type Result[T any] struct {
	Object       T
	FinishReason FinishReason
	Text         string
	Usage        Usage
}

// Judge returns the success verdict for the result's finish reason.
func (r Result[T]) Judge() Judgment { return JudgeFinish(r.FinishReason) }

func (rt *Runtime) request(agentID string, msg Message, opts CallOptions, jsonMode bool) (Request, error) {
	def, err := rt.Agent(agentID)
	if err != nil {
		return Request{}, err
	}
	system := def.Instructions
	if opts.Settings != "" {
		system = strings.TrimSpace(system) + "\n\n" + opts.Settings
	}
	if rt.maxRequestBytes > 0 {
		if size := msg.Size() + len(system); size > rt.maxRequestBytes {
			return Request{}, apperr.New(apperr.CodeMessageTooLarge,
				fmt.Sprintf("message for agent %s is %d bytes, limit is %d", agentID, size, rt.maxRequestBytes), false)
		}
	}
	return Request{
		Agent:       agentID,
		System:      system,
		Message:     msg,
		MaxTokens:   def.MaxTokens,
		Temperature: def.Temperature,
		JSON:        jsonMode,
	}, nil
}

func (rt *Runtime) do(ctx context.Context, req Request, send func(context.Context, Request) (Response, error)) (Response, error) {
	start := time.Now()
	resp, err := send(ctx, req)
	elapsed := time.Since(start)

	err = classify(req.Agent, rt.provider.Name(), err)
	status := callStatus(resp, err)
	if rt.recorder != nil {
		rt.recorder.RecordLLMCall(ctx, req.Agent, status, elapsed, resp.Usage)
	}
	rt.logger.DebugContext(ctx, "llm call",
		"agent", req.Agent,
		"provider", rt.provider.Name(),
		"status", status,
		"duration", elapsed,
		"tokens", resp.Usage.Total(),
	)
	return resp, err
}

func callStatus(resp Response, err error) string {
	switch {
	case err == nil:
		return string(resp.FinishReason)
	case IsContentLength(err):
		return "content_length"
	default:
		return "error"
	}
}

// Generate performs one structured-output call and decodes the result into
// T. Output that fails to decode gets one repair pass; if that also fails a
// *NoObjectError is returned.
func Generate[T any](ctx context.Context, rt *Runtime, agentID string, msg Message, opts CallOptions) (Result[T], error) {
	req, err := rt.request(agentID, msg, opts, true)
	if err != nil {
		return Result[T]{}, err
	}

	resp, err := rt.do(ctx, req, rt.provider.Generate)
	if err != nil {
		return Result[T]{}, err
	}
	usage := resp.Usage

	obj, decodeErr := decodeObject[T](resp.Content, opts.Schema)
	if decodeErr != nil && resp.FinishReason == FinishStop {
		repair := req
		repair.Message = Message{Text: fmt.Sprintf(
			"Your previous response was not valid. The error was: %s\n\nPlease fix it and respond with ONLY a valid JSON object.\n\nYour previous response was:\n%s",
			decodeErr.Error(), resp.Content,
		)}
		resp2, err := rt.do(ctx, repair, rt.provider.Generate)
		if err != nil {
			return Result[T]{}, fmt.Errorf("repair pass failed: %w (original error: %w)", err, decodeErr)
		}
		usage = usage.Add(resp2.Usage)
		resp = resp2
		obj, decodeErr = decodeObject[T](resp.Content, opts.Schema)
	}
	if decodeErr != nil {
		return Result[T]{}, &NoObjectError{Agent: agentID, Text: resp.Content, FinishReason: resp.FinishReason, Err: decodeErr}
	}

	return Result[T]{Object: obj, FinishReason: resp.FinishReason, Text: resp.Content, Usage: usage}, nil
}

// GenerateText performs one free-text call.
func GenerateText(ctx context.Context, rt *Runtime, agentID string, msg Message, opts CallOptions) (Result[string], error) {
	req, err := rt.request(agentID, msg, opts, false)
	if err != nil {
		return Result[string]{}, err
	}
	resp, err := rt.do(ctx, req, rt.provider.Generate)
	if err != nil {
		return Result[string]{}, err
	}
	return Result[string]{Object: resp.Content, FinishReason: resp.FinishReason, Text: resp.Content, Usage: resp.Usage}, nil
}

// StreamText performs one free-text call and reports output fragments to
// onDelta as they arrive. Providers without streaming deliver the whole
// answer as a single fragment.
func StreamText(ctx context.Context, rt *Runtime, agentID string, msg Message, opts CallOptions, onDelta func(string) error) (Result[string], error) {
	req, err := rt.request(agentID, msg, opts, false)
	if err != nil {
		return Result[string]{}, err
	}

	send := func(ctx context.Context, req Request) (Response, error) {
		if s, ok := rt.provider.(Streamer); ok {
			return s.Stream(ctx, req, onDelta)
		}
		resp, err := rt.provider.Generate(ctx, req)
		if err != nil {
			return resp, err
		}
		if resp.Content != "" {
			if err := onDelta(resp.Content); err != nil {
				return Response{}, err
			}
		}
		return resp, nil
	}

	resp, err := rt.do(ctx, req, send)
	if err != nil {
		return Result[string]{}, err
	}
	return Result[string]{Object: resp.Content, FinishReason: resp.FinishReason, Text: resp.Content, Usage: resp.Usage}, nil
}
