package finalize

import (
	"strings"

	"github.com/zen-systems/turnpike/pkg/budget"
)

const replyInstructions = `You are a helpful voice assistant composing the final reply to the user.
Ground every statement in the tool results below; never invent results.
Answer in the user's language. Keep it short and natural, suitable for speech.`

// buildPrompt assembles the reply prompt. Instructions, utterance, tool
// results, and the draft are mandatory; the dialog summary is optional and
// trimmed to its allocation.
func buildPrompt(in Input, plan budget.Plan) (string, budget.TrimReport) {
	var mandatory strings.Builder
	mandatory.WriteString(replyInstructions)
	if in.DraftReply != "" {
		mandatory.WriteString("\n\nDraft answer: ")
		mandatory.WriteString(in.DraftReply)
	}
	if toolBlock := in.Tools.Render(); toolBlock != "" {
		mandatory.WriteString("\n\nTool results:\n")
		mandatory.WriteString(toolBlock)
	}

	alloc := budget.Allocate(plan, budget.Sections{
		Instructions: budget.EstimateTokens(mandatory.String()),
		Utterance:    budget.EstimateTokens(in.Utterance),
	})
	optional, report := budget.Trim(alloc, budget.OptionalText{Dialog: in.DialogSummary})

	var sb strings.Builder
	sb.WriteString(mandatory.String())
	if optional.Dialog != "" {
		sb.WriteString("\n\nConversation so far:\n")
		sb.WriteString(optional.Dialog)
	}
	sb.WriteString("\n\nUser: ")
	sb.WriteString(in.Utterance)
	sb.WriteString("\nReply:")
	return sb.String(), report
}
