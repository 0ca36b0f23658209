package completion

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Mock returns deterministic responses for offline runs and tests. Responses
// are keyed by a substring of the prompt; the first sorted key that matches
// wins, so lookups stay deterministic.
type Mock struct {
	mu         sync.Mutex
	Responses  map[string]string
	Default    string
	Err        error
	Calls      int
	LastPrompt string
}

// NewMock creates a mock completer with a default reply.
func NewMock(defaultReply string) *Mock {
	if defaultReply == "" {
		defaultReply = "mock reply"
	}
	return &Mock{
		Responses: make(map[string]string),
		Default:   defaultReply,
	}
}

// Respond registers a canned response for prompts containing the substring.
func (m *Mock) Respond(substring, response string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[substring] = response
	return m
}

// Complete returns the matching canned response, or the default.
func (m *Mock) Complete(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.LastPrompt = req.Prompt
	if m.Err != nil {
		return nil, m.Err
	}

	keys := make([]string, 0, len(m.Responses))
	for k := range m.Responses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text := m.Default
	for _, k := range keys {
		if k != "" && strings.Contains(req.Prompt, k) {
			text = m.Responses[k]
			break
		}
	}

	return &Response{
		Text:             text,
		Model:            "mock",
		PromptTokens:     len(req.Prompt) / 4,
		CompletionTokens: len(text) / 4,
	}, nil
}
