package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultLocalBaseURL = "http://localhost:11434"

// Local implements Completer against an Ollama-compatible local server. It
// speaks the plain HTTP wire format directly since no client library exists
// for it.
type Local struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// localRequest is the /api/generate request body.
type localRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	Stream  bool         `json:"stream"`
	Options localOptions `json:"options,omitempty"`
}

type localOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// localResponse is the non-streaming /api/generate response body.
type localResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// NewLocal creates a completer for the local fast tier. An empty baseURL
// falls back to the standard Ollama address.
func NewLocal(baseURL, model string) (*Local, error) {
	if model == "" {
		return nil, fmt.Errorf("local model is required")
	}
	if baseURL == "" {
		baseURL = defaultLocalBaseURL
	}
	return &Local{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Complete posts the prompt to the local server and returns its single
// non-streamed response.
func (l *Local) Complete(ctx context.Context, req Request) (*Response, error) {
	body := localRequest{
		Model:  l.model,
		Prompt: req.Prompt,
		Stream: false,
		Options: localOptions{
			Temperature: req.Temperature,
			NumPredict:  maxTokensOrDefault(req.MaxTokens),
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: "local", Temporary: true, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Provider: "local", Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider:  "local",
			Status:    httpResp.StatusCode,
			Temporary: httpResp.StatusCode >= 500,
			Err:       fmt.Errorf("local server returned status %d: %s", httpResp.StatusCode, string(raw)),
		}
	}

	var parsed localResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Error{Provider: "local", Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if parsed.Error != "" {
		return nil, &Error{Provider: "local", Err: fmt.Errorf("local server error: %s", parsed.Error)}
	}

	return &Response{
		Text:             parsed.Response,
		Model:            l.model,
		PromptTokens:     parsed.PromptEvalCount,
		CompletionTokens: parsed.EvalCount,
	}, nil
}
