package finalize

import (
	"fmt"
	"strings"
)

const closingReply = "Sorry, I couldn't put together a proper answer just now."

// fallbackReply builds a deterministic reply from tool metadata when the
// model is unreachable. Degraded in informativeness, never in politeness.
func fallbackReply(in Input) string {
	items := in.Tools.Items
	if len(items) == 0 {
		if in.DraftReply != "" {
			return in.DraftReply
		}
		return closingReply
	}

	ok, failed := 0, 0
	for _, it := range items {
		if it.Success {
			ok++
		} else {
			failed++
		}
	}

	switch {
	case failed == 0 && ok == 1:
		it := items[0]
		if it.Body != "" {
			return fmt.Sprintf("Done. %s returned %s.", friendlyName(it.Tool), speakable(it.Body))
		}
		return fmt.Sprintf("Done. %s completed.", friendlyName(it.Tool))
	case failed == 0:
		return fmt.Sprintf("Done. All %d actions completed.", ok)
	case ok == 0 && len(items) == 1:
		return fmt.Sprintf("Sorry, %s didn't work this time.", friendlyName(items[0].Tool))
	case ok == 0:
		return "Sorry, none of the actions went through this time."
	default:
		return fmt.Sprintf("Partially done: %d of %d actions succeeded.", ok, ok+failed)
	}
}

// friendlyName turns "calendar.list_events" into "calendar list events".
func friendlyName(tool string) string {
	s := strings.ReplaceAll(tool, ".", " ")
	return strings.ReplaceAll(s, "_", " ")
}

// speakable clips a body that may still be a raw payload down to something
// a voice reply can carry.
func speakable(body string) string {
	const max = 80
	if len(body) <= max {
		return body
	}
	return body[:max] + "…"
}
