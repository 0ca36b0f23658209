package completion

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Google implements Completer for Gemini models.
type Google struct {
	client *genai.Client
	model  string
}

// NewGoogle creates a Gemini completer bound to one model.
func NewGoogle(apiKey, model string) (*Google, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("google model is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return &Google{client: client, model: model}, nil
}

// Complete sends the prompt to Gemini and concatenates the candidate parts.
func (g *Google) Complete(ctx context.Context, req Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokensOrDefault(req.MaxTokens)),
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, &Error{Provider: "google", Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &Error{Provider: "google", Err: fmt.Errorf("no candidates returned")}
	}

	var text string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
	}

	out := &Response{Text: text, Model: g.model}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
