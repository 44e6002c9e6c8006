package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

// Vertex implements Provider and Streamer for Gemini models on Vertex AI.
type Vertex struct {
	model  string
	client *genai.Client
}

// NewVertex creates a Gemini provider. project and location fall back to
// GOOGLE_CLOUD_PROJECT and GOOGLE_CLOUD_LOCATION.
func NewVertex(ctx context.Context, model, project, location string) (*Vertex, error) {
	if project == "" {
		project = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if location == "" {
		location = os.Getenv("GOOGLE_CLOUD_LOCATION")
	}
	if project == "" || location == "" {
		return nil, fmt.Errorf("vertex project and location must be set (config vertex.project/vertex.location or GOOGLE_CLOUD_PROJECT/GOOGLE_CLOUD_LOCATION)")
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Vertex{model: model, client: client}, nil
}

func (v *Vertex) Name() string { return "gemini" }

// Close releases the underlying client.
func (v *Vertex) Close() error {
	return v.client.Close()
}

func (v *Vertex) Generate(ctx context.Context, req Request) (Response, error) {
	model, parts, err := v.prepare(req)
	if err != nil {
		return Response{}, err
	}

	var out Response
	err = retryWithBackoff(ctx, 3, func() error {
		resp, err := model.GenerateContent(ctx, parts...)
		if err != nil {
			return vertexError(err)
		}
		out = vertexResponse(resp)
		return nil
	})
	return out, err
}

func (v *Vertex) Stream(ctx context.Context, req Request, onDelta func(string) error) (Response, error) {
	model, parts, err := v.prepare(req)
	if err != nil {
		return Response{}, err
	}

	it := model.GenerateContentStream(ctx, parts...)
	var content strings.Builder
	var out Response
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return Response{}, vertexError(err)
		}
		chunk := vertexResponse(resp)
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if err := onDelta(chunk.Content); err != nil {
				return Response{}, err
			}
		}
		if chunk.FinishReason != FinishOther {
			out.FinishReason = chunk.FinishReason
		}
		if chunk.Usage.Total() > 0 {
			out.Usage = chunk.Usage
		}
	}
	out.Content = content.String()
	if out.FinishReason == "" {
		out.FinishReason = FinishStop
	}
	return out, nil
}

func (v *Vertex) prepare(req Request) (*genai.GenerativeModel, []genai.Part, error) {
	model := v.client.GenerativeModel(v.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.System)},
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	model.SetMaxOutputTokens(int32(maxTokens))
	model.SetTemperature(float32(req.Temperature))
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := make([]genai.Part, 0, len(req.Message.Images)+1)
	for i, img := range req.Message.Images {
		data, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return nil, nil, fmt.Errorf("decoding image %d: %w", i, err)
		}
		parts = append(parts, genai.ImageData("png", data))
	}
	parts = append(parts, genai.Text(req.Message.Text))
	return model, parts, nil
}

func vertexResponse(resp *genai.GenerateContentResponse) Response {
	var out Response
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		out.FinishReason = FinishContentFilter
		return out
	}
	cand := resp.Candidates[0]
	out.FinishReason = vertexFinish(cand.FinishReason)
	if cand.Content != nil {
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		out.Content = b.String()
	}
	return out
}

func vertexFinish(reason genai.FinishReason) FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return FinishStop
	case genai.FinishReasonMaxTokens:
		return FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return FinishContentFilter
	default:
		return FinishOther
	}
}

// vertexError maps gRPC failures to the shared status taxonomy by message
// inspection; the SDK does not expose HTTP status codes.
func vertexError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ResourceExhausted") || strings.Contains(msg, "code = ResourceExhausted"):
		if isContentLengthMessage(msg) {
			return &statusError{statusCode: 400, body: msg}
		}
		return &rateLimitError{body: msg}
	case strings.Contains(msg, "PermissionDenied") || strings.Contains(msg, "Unauthenticated"):
		return &authError{message: msg}
	case strings.Contains(msg, "Unavailable") || strings.Contains(msg, "Internal"):
		return &statusError{statusCode: 503, body: msg}
	}
	return err
}
