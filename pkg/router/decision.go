package router

import (
	"fmt"
	"strings"
)

// Route values a decision may carry. Anything the model invents outside this
// set normalizes to RouteUnknown.
const (
	RouteSmalltalk = "smalltalk"
	RouteCalendar  = "calendar"
	RouteMail      = "mail"
	RouteMusic     = "music"
	RouteFiles     = "files"
	RouteBrowser   = "browser"
	RouteUnknown   = "unknown"
)

var knownRoutes = map[string]struct{}{
	RouteSmalltalk: {},
	RouteCalendar:  {},
	RouteMail:      {},
	RouteMusic:     {},
	RouteFiles:     {},
	RouteBrowser:   {},
	RouteUnknown:   {},
}

// FallbackReply is the canned apology used when routing cannot produce a
// usable decision.
const FallbackReply = "Sorry, I couldn't quite understand that. Could you rephrase?"

// Decision is the structured outcome of routing one utterance. It is built
// once per turn and immutable afterward.
type Decision struct {
	Route      string            `json:"route"`
	Intent     string            `json:"intent,omitempty"`
	Slots      map[string]string `json:"slots,omitempty"`
	Confidence float64           `json:"confidence"`
	ToolPlan   []string          `json:"tool_plan,omitempty"`
	Reply      string            `json:"reply,omitempty"`

	// Diagnostics, never shown to the user.
	Raw             string   `json:"raw,omitempty"`
	Fallback        bool     `json:"fallback,omitempty"`
	DroppedTools    []string `json:"dropped_tools,omitempty"`
	TrimmedSections []string `json:"trimmed_sections,omitempty"`
}

// rawDecision mirrors the JSON object the model is asked to return. Slot
// values tolerate non-string JSON types.
type rawDecision struct {
	Route      string         `json:"route"`
	Intent     string         `json:"intent"`
	Slots      map[string]any `json:"slots"`
	Confidence float64        `json:"confidence"`
	Tools      []string       `json:"tools"`
	Reply      string         `json:"reply"`
}

// newDecision is the single construction path for every Decision, fallback
// or parsed. Normalization order matters: the confidence gate runs last so
// no earlier step can reintroduce tools below the threshold.
func newDecision(raw rawDecision, rawText string, fallback bool, threshold float64) *Decision {
	d := &Decision{
		Route:    normalizeRoute(raw.Route),
		Intent:   strings.TrimSpace(raw.Intent),
		Slots:    normalizeSlots(raw.Slots),
		Reply:    strings.TrimSpace(raw.Reply),
		ToolPlan: raw.Tools,
		Raw:      rawText,
		Fallback: fallback,
	}

	d.Confidence = clamp01(raw.Confidence)

	if d.Confidence < threshold {
		d.ToolPlan = nil
	}
	return d
}

func fallbackDecision(rawText string, threshold float64) *Decision {
	return newDecision(rawDecision{
		Route:      RouteUnknown,
		Confidence: 0,
		Reply:      FallbackReply,
	}, rawText, true, threshold)
}

func normalizeRoute(route string) string {
	route = strings.ToLower(strings.TrimSpace(route))
	if _, ok := knownRoutes[route]; !ok {
		return RouteUnknown
	}
	return route
}

func normalizeSlots(slots map[string]any) map[string]string {
	if len(slots) == 0 {
		return nil
	}
	out := make(map[string]string, len(slots))
	for k, v := range slots {
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
