package router

import "github.com/zen-systems/turnpike/pkg/completion"

// parseDecision extracts the router's JSON decision from model output,
// tolerating markdown fences and surrounding prose.
func parseDecision(content string) (rawDecision, error) {
	var raw rawDecision
	if err := completion.DecodeJSON(content, &raw); err != nil {
		return raw, err
	}
	return raw, nil
}
