package agent

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAI implements Provider and Streamer using the official openai-go SDK.
type OpenAI struct {
	model  string
	client openai.Client
}

// NewOpenAI creates a new OpenAI provider. baseURL may point at any
// OpenAI-compatible gateway; when empty DOCREVIEW_OPENAI_BASE_URL is used.
func NewOpenAI(model, baseURL string) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	if baseURL == "" {
		baseURL = os.Getenv("DOCREVIEW_OPENAI_BASE_URL")
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return newOpenAI(model, opts...), nil
}

func newOpenAI(model string, opts ...option.RequestOption) *OpenAI {
	return &OpenAI{model: model, client: openai.NewClient(opts...)}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Generate(ctx context.Context, req Request) (Response, error) {
	completion, err := o.client.Chat.Completions.New(ctx, o.params(req))
	if err != nil {
		return Response{}, openaiError(err)
	}
	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("no choices in response")
	}
	choice := completion.Choices[0]
	return Response{
		Content:      choice.Message.Content,
		FinishReason: openaiFinish(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func (o *OpenAI) Stream(ctx context.Context, req Request, onDelta func(string) error) (Response, error) {
	params := o.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var resp Response
	var content []byte
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			resp.Usage = Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content = append(content, choice.Delta.Content...)
			if err := onDelta(choice.Delta.Content); err != nil {
				return Response{}, err
			}
		}
		if choice.FinishReason != "" {
			resp.FinishReason = openaiFinish(choice.FinishReason)
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, openaiError(err)
	}
	resp.Content = string(content)
	return resp, nil
}

func (o *OpenAI) params(req Request) openai.ChatCompletionNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	var user openai.ChatCompletionMessageParamUnion
	if len(req.Message.Images) == 0 {
		user = openai.UserMessage(req.Message.Text)
	} else {
		parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.Message.Text)}
		for _, img := range req.Message.Images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:image/png;base64," + img,
			}))
		}
		user = openai.UserMessage(parts)
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			user,
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// openaiError maps SDK errors onto the same status taxonomy as the HTTP
// providers so content-length and auth detection behave identically.
func openaiError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := apiErr.Code + ": " + apiErr.Message + " " + apiErr.Error()
		if mapped := checkStatus(apiErr.StatusCode, []byte(body)); mapped != nil {
			return mapped
		}
	}
	return err
}

func openaiFinish(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishOther
	}
}
