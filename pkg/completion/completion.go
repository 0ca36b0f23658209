package completion

import "context"

// Request is a single text-completion call.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response carries the model's text and normalized token usage.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns the combined prompt and completion token count.
func (r *Response) TotalTokens() int {
	if r == nil {
		return 0
	}
	return r.PromptTokens + r.CompletionTokens
}

// Completer is the one capability the pipeline needs from a language model.
// The fast local tier and the quality remote tier both implement it.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

const defaultMaxTokens = 1024

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}
