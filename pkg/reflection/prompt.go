package reflection

import (
	"fmt"
	"strings"

	"github.com/zen-systems/turnpike/pkg/tools"
)

const verdictInstructions = `You check whether completed tool calls satisfied a user's request.
Answer with a single JSON object and nothing else:
{"satisfied": <true|false>, "reason": "<one short sentence>", "corrective_action": "<what to try instead, or empty>"}`

// buildPrompt assembles the compact verification prompt. Only the tool
// detail section is subject to the character budget; the instructions and
// the utterance always go through whole.
func buildPrompt(t Turn, problem *tools.InvocationResult, charBudget int) string {
	var sb strings.Builder

	sb.WriteString(verdictInstructions)
	sb.WriteString("\n\nUser request: ")
	sb.WriteString(t.Utterance)

	if problem == nil {
		sb.WriteString("\n\nNo tools were run for this request.")
	} else {
		sb.WriteString(fmt.Sprintf("\n\nTool under suspicion: %s\n", problem.Tool))
		sb.WriteString(clipTo(describeResult(problem), charBudget))
	}

	sb.WriteString("\n\nDid this satisfy the request?")
	return sb.String()
}

func describeResult(r *tools.InvocationResult) string {
	switch {
	case r.Error != "":
		return fmt.Sprintf("The call failed with: %s", r.Error)
	case !r.Success:
		return "The call failed without an error message."
	case r.Empty():
		return "The call succeeded but returned nothing."
	default:
		return fmt.Sprintf("The call returned: %s", r.Summary)
	}
}

func clipTo(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
