package completion

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// OpenAI implements Completer for OpenAI chat models.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI completer bound to one model. The SDK resolves
// OPENAI_API_KEY from the environment.
func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	client := openai.NewClient()
	return &OpenAI{client: client, model: model}, nil
}

// Complete sends the prompt as a single user message.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokensOrDefault(req.MaxTokens))),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &Error{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Provider: "openai", Err: fmt.Errorf("no choices returned")}
	}

	return &Response{
		Text:             resp.Choices[0].Message.Content,
		Model:            o.model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
