package completion

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals one JSON object out of model output. Markdown fences
// are stripped and the substring between the first '{' and the last '}' is
// what gets unmarshalled, so prose around the object is tolerated.
func DecodeJSON(text string, v any) error {
	cleaned := stripFences(text)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err != nil {
		return fmt.Errorf("invalid JSON in model output: %w", err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
