package compress

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zen-systems/turnpike/pkg/budget"
	"github.com/zen-systems/turnpike/pkg/tools"
)

// Degradation levels, best fidelity first.
const (
	LevelRaw     = "raw"
	LevelSummary = "summary"
	LevelClipped = "clipped"
)

const (
	maxClippedTools = 3
	clipChars       = 200
)

// Item is one tool's compressed representation. Tool, Success, and Error
// survive every level verbatim; only Body ever shrinks.
type Item struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Body    string `json:"body,omitempty"`
}

// Result is the compressor's output for one turn.
type Result struct {
	Level    string `json:"level"`
	Degraded bool   `json:"degraded"`
	Items    []Item `json:"items"`
	Dropped  int    `json:"dropped,omitempty"`
	Tokens   int    `json:"tokens"`
}

// Compress fits tool results into the finalizer's token budget by degrading
// stepwise: full raw payloads, then pre-computed summaries, then the first
// few tools clipped. A non-positive budget forces the most compact level.
func Compress(results []tools.InvocationResult, tokenBudget int) Result {
	if tokenBudget > 0 {
		raw := build(results, rawBody)
		if tokens := estimate(raw, 0); tokens <= tokenBudget {
			return Result{Level: LevelRaw, Items: raw, Tokens: tokens}
		}

		summaries := build(results, summaryBody)
		if tokens := estimate(summaries, 0); tokens <= tokenBudget {
			return Result{Level: LevelSummary, Degraded: true, Items: summaries, Tokens: tokens}
		}
	}

	kept := results
	if len(kept) > maxClippedTools {
		kept = kept[:maxClippedTools]
	}
	items := build(kept, clippedBody)
	dropped := len(results) - len(kept)
	return Result{
		Level:    LevelClipped,
		Degraded: true,
		Items:    items,
		Dropped:  dropped,
		Tokens:   estimate(items, dropped),
	}
}

// Render returns the prompt block the finalizer embeds.
func (r Result) Render() string {
	var sb strings.Builder
	for _, it := range r.Items {
		status := "ok"
		if !it.Success {
			status = "failed"
		}
		sb.WriteString(fmt.Sprintf("- %s [%s]", it.Tool, status))
		if it.Error != "" {
			sb.WriteString(" error: ")
			sb.WriteString(it.Error)
		}
		if it.Body != "" {
			sb.WriteString(": ")
			sb.WriteString(it.Body)
		}
		sb.WriteString("\n")
	}
	if r.Dropped > 0 {
		fmt.Fprintf(&sb, "(%d more tool results omitted)\n", r.Dropped)
	}
	return sb.String()
}

func build(results []tools.InvocationResult, body func(tools.InvocationResult) string) []Item {
	items := make([]Item, 0, len(results))
	for _, res := range results {
		items = append(items, Item{
			Tool:    res.Tool,
			Success: res.Success,
			Error:   res.Error,
			Body:    body(res),
		})
	}
	return items
}

func rawBody(res tools.InvocationResult) string {
	if res.Raw == nil {
		return ""
	}
	if s, ok := res.Raw.(string); ok {
		return s
	}
	b, err := json.Marshal(res.Raw)
	if err != nil {
		return fmt.Sprintf("%v", res.Raw)
	}
	return string(b)
}

func summaryBody(res tools.InvocationResult) string {
	return res.Summary
}

func clippedBody(res tools.InvocationResult) string {
	s := res.Summary
	if len(s) <= clipChars {
		return s
	}
	return s[:clipChars] + "…"
}

func estimate(items []Item, dropped int) int {
	return budget.EstimateTokens(Result{Items: items, Dropped: dropped}.Render())
}
