package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zen-systems/turnpike/pkg/budget"
)

const instructionBlock = `You are the routing brain of a personal assistant.
Decide what the user wants and which tools to run.
Return exactly ONE JSON object and nothing else, with these fields:
  "route": one of smalltalk, calendar, mail, music, files, browser, unknown
  "intent": a short snake_case verb phrase
  "slots": an object of extracted parameters (may be empty)
  "confidence": a number from 0.0 to 1.0
  "tools": an ordered list of tool names to run (may be empty)
  "reply": a short draft answer for the user
Only plan tools from the available list. When unsure, lower the confidence
and leave tools empty.`

const fewShotBlock = `Examples:

User: merhaba
{"route":"smalltalk","intent":"greeting","slots":{},"confidence":1.0,"tools":[],"reply":"Merhaba! How can I help you today?"}

User: what's on my calendar tomorrow?
{"route":"calendar","intent":"list_events","slots":{"date":"tomorrow"},"confidence":0.95,"tools":["calendar.list"],"reply":"Let me check tomorrow's schedule."}

User: email Deniz that the demo moved to 4pm
{"route":"mail","intent":"send_mail","slots":{"to":"Deniz","body":"the demo moved to 4pm"},"confidence":0.9,"tools":["mail.send"],"reply":"Drafting that email to Deniz now."}`

// buildPrompt assembles the routing prompt under the planner's budget. The
// instruction block, examples, tool list, and utterance are mandatory; the
// dialog summary, memory, and session blocks are trimmed to their grants.
func buildPrompt(in Input, plan budget.Plan, toolNames []string) (string, budget.TrimReport) {
	toolsLine := "Available tools: none"
	if len(toolNames) > 0 {
		toolsLine = "Available tools: " + strings.Join(toolNames, ", ")
	}

	mandatory := strings.Join([]string{instructionBlock, toolsLine, fewShotBlock}, "\n\n")

	alloc := budget.Allocate(plan, budget.Sections{
		Instructions: budget.EstimateTokens(mandatory),
		Utterance:    budget.EstimateTokens(in.Utterance),
	})

	optional, report := budget.Trim(alloc, budget.OptionalText{
		Dialog:  in.DialogSummary,
		Memory:  in.MemoryText,
		Session: renderSession(in.SessionContext),
	})

	var sb strings.Builder
	sb.WriteString(mandatory)
	if optional.Dialog != "" {
		sb.WriteString("\n\nConversation so far:\n")
		sb.WriteString(optional.Dialog)
	}
	if optional.Memory != "" {
		sb.WriteString("\n\nRelevant memory:\n")
		sb.WriteString(optional.Memory)
	}
	if optional.Session != "" {
		sb.WriteString("\n\nSession:\n")
		sb.WriteString(optional.Session)
	}
	sb.WriteString("\n\nUser: ")
	sb.WriteString(in.Utterance)
	sb.WriteString("\n")

	return sb.String(), report
}

func renderSession(ctx map[string]string) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, ctx[k]))
	}
	return strings.Join(lines, "\n")
}
