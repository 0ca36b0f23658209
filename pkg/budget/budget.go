package budget

import "strings"

const (
	completionReservePct = 15
	safetyMarginPct      = 5

	// minAvailable keeps the prompt budget positive even for absurdly
	// small context windows, so downstream allocation never divides or
	// trims against zero.
	minAvailable = 256

	charsPerToken = 4
)

// TruncationMarker is appended to any section shortened during trimming.
const TruncationMarker = " … [truncated]"

// Plan carves a model's context window into a completion reserve, a safety
// margin, and the token budget left for the prompt itself. Reserve and margin
// scale with the window so larger models keep proportionally more room to
// answer.
type Plan struct {
	ContextWindow      int
	CompletionReserve  int
	SafetyMargin       int
	AvailableForPrompt int
}

// PlanFor computes the budget plan for a context window.
func PlanFor(contextWindow int) Plan {
	if contextWindow < 0 {
		contextWindow = 0
	}
	reserve := contextWindow * completionReservePct / 100
	margin := contextWindow * safetyMarginPct / 100
	available := contextWindow - reserve - margin
	if available < minAvailable {
		available = minAvailable
	}
	return Plan{
		ContextWindow:      contextWindow,
		CompletionReserve:  reserve,
		SafetyMargin:       margin,
		AvailableForPrompt: available,
	}
}

// Sections holds measured token counts for the mandatory prompt sections.
type Sections struct {
	Instructions int
	Utterance    int
}

// Allocation grants each prompt section a token budget. Mandatory sections
// receive exactly their measured size; the remainder is split across the
// optional sections with the rest held back as headroom.
type Allocation struct {
	Instructions int
	Utterance    int
	Dialog       int
	Memory       int
	Session      int
	Headroom     int
}

// Allocate distributes a plan's available budget over the prompt sections.
// Optional shares: dialog 25%, memory 25%, session 15%. No grant is ever
// negative, even when the mandatory sections alone overflow the budget.
func Allocate(plan Plan, measured Sections) Allocation {
	alloc := Allocation{
		Instructions: clampNonNegative(measured.Instructions),
		Utterance:    clampNonNegative(measured.Utterance),
	}

	remainder := plan.AvailableForPrompt - alloc.Instructions - alloc.Utterance
	if remainder < 0 {
		remainder = 0
	}

	alloc.Dialog = remainder * 25 / 100
	alloc.Memory = remainder * 25 / 100
	alloc.Session = remainder * 15 / 100
	alloc.Headroom = remainder - alloc.Dialog - alloc.Memory - alloc.Session
	return alloc
}

// OptionalText carries the optional prompt sections prior to trimming.
type OptionalText struct {
	Dialog  string
	Memory  string
	Session string
}

// TrimReport names the sections that were shortened, in trim order.
type TrimReport struct {
	Trimmed []string
}

// Any reports whether at least one section was cut.
func (r TrimReport) Any() bool { return len(r.Trimmed) > 0 }

// Trim cuts each optional section down to its granted budget, in priority
// order dialog → memory → session. A shortened section gets the truncation
// marker appended and is recorded in the report for observability.
func Trim(alloc Allocation, text OptionalText) (OptionalText, TrimReport) {
	var report TrimReport
	text.Dialog = trimSection("dialog", text.Dialog, alloc.Dialog, &report)
	text.Memory = trimSection("memory", text.Memory, alloc.Memory, &report)
	text.Session = trimSection("session", text.Session, alloc.Session, &report)
	return text, report
}

func trimSection(name, s string, grant int, report *TrimReport) string {
	if s == "" || EstimateTokens(s) <= grant {
		return s
	}
	limit := grant * charsPerToken
	if limit < 0 {
		limit = 0
	}
	if limit > len(s) {
		limit = len(s)
	}
	cut := strings.TrimRight(s[:limit], " \t\n")
	report.Trimmed = append(report.Trimmed, name)
	return cut + TruncationMarker
}

// EstimateTokens approximates the token count of a string at four characters
// per token, rounding up so estimates err on the safe side.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
