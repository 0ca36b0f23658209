package compress

import (
	"strings"
	"testing"

	"github.com/zen-systems/turnpike/pkg/tools"
)

func sampleResults() []tools.InvocationResult {
	return []tools.InvocationResult{
		{Tool: "calendar.list_events", Success: true, Raw: []string{"standup 09:00", "review 14:00"}, Summary: "2 items"},
		{Tool: "mail.search", Success: false, Error: "timeout", Summary: "timeout"},
	}
}

func TestCompressKeepsRawWhenItFits(t *testing.T) {
	r := Compress(sampleResults(), 10_000)

	if r.Level != LevelRaw || r.Degraded {
		t.Fatalf("result = %+v, want raw and not degraded", r)
	}
	if !strings.Contains(r.Items[0].Body, "standup 09:00") {
		t.Errorf("raw body lost payload content: %q", r.Items[0].Body)
	}
	if r.Items[1].Error != "timeout" {
		t.Errorf("error text = %q, want verbatim timeout", r.Items[1].Error)
	}
}

func TestCompressFallsBackToSummaries(t *testing.T) {
	big := make([]string, 400)
	for i := range big {
		big[i] = "a fairly long calendar entry title to inflate the raw payload"
	}
	results := []tools.InvocationResult{
		{Tool: "calendar.list_events", Success: true, Raw: big, Summary: "400 items"},
		{Tool: "mail.search", Success: true, Raw: []string{"hit"}, Summary: "1 items"},
	}

	r := Compress(results, 200)

	if r.Level != LevelSummary || !r.Degraded {
		t.Fatalf("result = %+v, want degraded summary level", r)
	}
	if r.Items[0].Body != "400 items" {
		t.Errorf("body = %q, want the pre-computed summary string exactly", r.Items[0].Body)
	}
	if r.Items[0].Tool != "calendar.list_events" || !r.Items[0].Success {
		t.Errorf("identity fields must survive degradation: %+v", r.Items[0])
	}
}

func TestCompressClipsToFirstThreeTools(t *testing.T) {
	long := strings.Repeat("words and more words ", 40)
	var results []tools.InvocationResult
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		results = append(results, tools.InvocationResult{
			Tool: name, Success: true, Raw: long, Summary: long,
		})
	}

	r := Compress(results, 30)

	if r.Level != LevelClipped || !r.Degraded {
		t.Fatalf("result = %+v, want clipped level", r)
	}
	if len(r.Items) != 3 || r.Dropped != 2 {
		t.Fatalf("kept %d, dropped %d; want 3 kept, 2 dropped", len(r.Items), r.Dropped)
	}
	for _, it := range r.Items {
		if len(it.Body) > clipChars+len("…") {
			t.Errorf("tool %s body is %d chars, want at most %d plus ellipsis", it.Tool, len(it.Body), clipChars)
		}
	}
	if !strings.Contains(r.Render(), "2 more tool results omitted") {
		t.Error("render should note the dropped tools")
	}
}

func TestCompressErrorTextSurvivesClipping(t *testing.T) {
	long := strings.Repeat("payload ", 200)
	results := []tools.InvocationResult{
		{Tool: "mail.search", Success: false, Error: "mailbox locked by another session", Raw: long, Summary: long},
	}

	r := Compress(results, 10)

	if r.Level != LevelClipped {
		t.Fatalf("level = %s, want clipped", r.Level)
	}
	if r.Items[0].Error != "mailbox locked by another session" {
		t.Errorf("error = %q, must survive verbatim", r.Items[0].Error)
	}
}

func TestCompressZeroBudgetForcesClipped(t *testing.T) {
	r := Compress(sampleResults(), 0)

	if r.Level != LevelClipped {
		t.Errorf("level = %s, want clipped for a non-positive budget", r.Level)
	}
}

func TestCompressNoResults(t *testing.T) {
	r := Compress(nil, 1000)

	if r.Level != LevelRaw || len(r.Items) != 0 {
		t.Errorf("result = %+v, want empty raw result", r)
	}
	if r.Render() != "" {
		t.Errorf("render = %q, want empty", r.Render())
	}
}

func TestRenderMarksFailures(t *testing.T) {
	r := Compress(sampleResults(), 10_000)
	text := r.Render()

	if !strings.Contains(text, "calendar.list_events [ok]") {
		t.Errorf("render missing ok marker: %q", text)
	}
	if !strings.Contains(text, "mail.search [failed] error: timeout") {
		t.Errorf("render missing failure marker: %q", text)
	}
}
