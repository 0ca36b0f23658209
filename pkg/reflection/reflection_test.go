package reflection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zen-systems/turnpike/pkg/completion"
	"github.com/zen-systems/turnpike/pkg/tools"
)

type scriptedCompleter struct {
	text       string
	err        error
	calls      int
	lastPrompt string
}

func (s *scriptedCompleter) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	s.calls++
	s.lastPrompt = req.Prompt
	if s.err != nil {
		return nil, s.err
	}
	return &completion.Response{Text: s.text, Model: "scripted"}, nil
}

func okResult(tool string) tools.InvocationResult {
	return tools.InvocationResult{Tool: tool, Success: true, Raw: []string{"x"}, Summary: "1 items"}
}

func erroredResult(tool, msg string) tools.InvocationResult {
	return tools.InvocationResult{Tool: tool, Success: false, Error: msg}
}

func emptyResult(tool string) tools.InvocationResult {
	return tools.InvocationResult{Tool: tool, Success: true, Raw: []string{}, Summary: "0 items"}
}

func TestInspectSkipsHealthyTurn(t *testing.T) {
	c := &scriptedCompleter{text: `{"satisfied": false}`}
	e := New(c)

	v := e.Inspect(context.Background(), Turn{
		Utterance:  "yarın toplantım var mı",
		Confidence: 0.9,
		Results:    []tools.InvocationResult{okResult("calendar.list_events")},
	})

	if v.Triggered {
		t.Fatalf("reflection should not trigger on a healthy turn, got %+v", v)
	}
	if c.calls != 0 {
		t.Errorf("completer called %d times, want 0", c.calls)
	}
	if v.Unsatisfied() {
		t.Error("untriggered verdict must not read as unsatisfied")
	}
}

func TestInspectTriggersOnErroredTool(t *testing.T) {
	c := &scriptedCompleter{text: `{"satisfied": false, "reason": "mail search timed out", "corrective_action": "retry with a narrower query"}`}
	e := New(c)

	v := e.Inspect(context.Background(), Turn{
		Utterance:  "find the email from Deniz",
		Confidence: 0.9,
		Results: []tools.InvocationResult{
			okResult("calendar.list_events"),
			erroredResult("mail.search", "timeout"),
		},
	})

	if !v.Triggered || v.Cause != CauseToolErrored {
		t.Fatalf("verdict = %+v, want triggered with cause %s", v, CauseToolErrored)
	}
	if !v.Unsatisfied() {
		t.Error("model said not satisfied, verdict should agree")
	}
	if v.Reason != "mail search timed out" {
		t.Errorf("reason = %q", v.Reason)
	}
	if v.Corrective != "retry with a narrower query" {
		t.Errorf("corrective = %q", v.Corrective)
	}
	if !strings.Contains(c.lastPrompt, "mail.search") {
		t.Error("prompt should name the errored tool")
	}
	if !strings.Contains(c.lastPrompt, "timeout") {
		t.Error("prompt should carry the error text")
	}
}

func TestInspectTriggersOnEmptyToolUnlessAllowListed(t *testing.T) {
	c := &scriptedCompleter{text: `{"satisfied": true, "reason": "nothing scheduled"}`}
	e := New(c)

	v := e.Inspect(context.Background(), Turn{
		Utterance:  "any meetings tomorrow",
		Confidence: 0.9,
		Results:    []tools.InvocationResult{emptyResult("calendar.list_events")},
	})
	if !v.Triggered || v.Cause != CauseToolEmpty {
		t.Fatalf("verdict = %+v, want triggered with cause %s", v, CauseToolEmpty)
	}

	allowing := New(c, WithAllowEmpty(tools.NewAllowEmpty("calendar.list_events")))
	v = allowing.Inspect(context.Background(), Turn{
		Utterance:  "any meetings tomorrow",
		Confidence: 0.9,
		Results:    []tools.InvocationResult{emptyResult("calendar.list_events")},
	})
	if v.Triggered {
		t.Fatalf("allow-listed empty result should not trigger, got %+v", v)
	}
}

func TestInspectTriggersOnLowConfidence(t *testing.T) {
	c := &scriptedCompleter{text: `{"satisfied": true, "reason": "smalltalk"}`}
	e := New(c)

	v := e.Inspect(context.Background(), Turn{Utterance: "hmm belki", Confidence: 0.2})

	if !v.Triggered || v.Cause != CauseLowConfidence {
		t.Fatalf("verdict = %+v, want triggered with cause %s", v, CauseLowConfidence)
	}
	if !strings.Contains(c.lastPrompt, "No tools were run") {
		t.Error("prompt should note that no tools ran")
	}
}

func TestInspectConfidenceAtThresholdDoesNotTrigger(t *testing.T) {
	c := &scriptedCompleter{text: `{"satisfied": true}`}
	e := New(c, WithThreshold(0.4))

	v := e.Inspect(context.Background(), Turn{Utterance: "selam", Confidence: 0.4})

	if v.Triggered {
		t.Fatalf("confidence at the threshold should not trigger, got %+v", v)
	}
}

func TestInspectCompletionFailureDegradesToSatisfied(t *testing.T) {
	c := &scriptedCompleter{err: errors.New("connection refused")}
	e := New(c)

	v := e.Inspect(context.Background(), Turn{
		Utterance:  "find the email from Deniz",
		Confidence: 0.9,
		Results:    []tools.InvocationResult{erroredResult("mail.search", "timeout")},
	})

	if !v.Triggered || !v.Satisfied {
		t.Fatalf("verdict = %+v, want triggered and satisfied", v)
	}
	if v.Reason != ReasonCompletionError {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonCompletionError)
	}
	if v.Cause != CauseToolErrored {
		t.Errorf("cause = %q, trigger cause should survive the degradation", v.Cause)
	}
}

func TestInspectUnparseableVerdictDegradesToSatisfied(t *testing.T) {
	c := &scriptedCompleter{text: "I think it went fine, probably."}
	e := New(c)

	v := e.Inspect(context.Background(), Turn{
		Utterance:  "find the email from Deniz",
		Confidence: 0.9,
		Results:    []tools.InvocationResult{erroredResult("mail.search", "timeout")},
	})

	if !v.Satisfied {
		t.Fatalf("verdict = %+v, want satisfied on parse failure", v)
	}
	if v.Reason != ReasonParseError {
		t.Errorf("reason = %q, want %q", v.Reason, ReasonParseError)
	}
}

func TestInspectParsesFencedVerdict(t *testing.T) {
	c := &scriptedCompleter{text: "```json\n{\"satisfied\": false, \"reason\": \"empty inbox hit\"}\n```"}
	e := New(c)

	v := e.Inspect(context.Background(), Turn{
		Utterance:  "find the email from Deniz",
		Confidence: 0.9,
		Results:    []tools.InvocationResult{emptyResult("mail.search")},
	})

	if v.Satisfied {
		t.Fatalf("verdict = %+v, want unsatisfied from fenced JSON", v)
	}
	if v.Reason != "empty inbox hit" {
		t.Errorf("reason = %q", v.Reason)
	}
}

func TestProblematicPrefersErroredOverEmpty(t *testing.T) {
	e := New(&scriptedCompleter{})
	turn := Turn{
		Results: []tools.InvocationResult{
			emptyResult("calendar.list_events"),
			erroredResult("mail.search", "timeout"),
			okResult("music.play"),
		},
	}

	p := e.problematic(turn)
	if p == nil || p.Tool != "mail.search" {
		t.Fatalf("problematic = %+v, want the errored mail.search", p)
	}
}

func TestProblematicFallsBackToLastResult(t *testing.T) {
	e := New(&scriptedCompleter{})
	turn := Turn{
		Results: []tools.InvocationResult{
			okResult("calendar.list_events"),
			okResult("music.play"),
		},
	}

	p := e.problematic(turn)
	if p == nil || p.Tool != "music.play" {
		t.Fatalf("problematic = %+v, want the last result", p)
	}
}

func TestBuildPromptClipsToolDetail(t *testing.T) {
	long := erroredResult("mail.search", strings.Repeat("x", 2000))
	prompt := buildPrompt(Turn{Utterance: "find it"}, &long, 600)

	detail := prompt[strings.Index(prompt, "Tool under suspicion"):]
	if len(detail) > 700 {
		t.Errorf("tool detail section is %d chars, budget was 600", len(detail))
	}
	if !strings.Contains(prompt, "…") {
		t.Error("clipped detail should carry the ellipsis")
	}
}
