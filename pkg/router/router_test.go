package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zen-systems/turnpike/pkg/budget"
	"github.com/zen-systems/turnpike/pkg/completion"
	"github.com/zen-systems/turnpike/pkg/tools"
)

func budgetPlanSmall() budget.Plan { return budget.PlanFor(2048) }

// scriptedCompleter returns a fixed response and records calls.
type scriptedCompleter struct {
	text       string
	err        error
	calls      int
	lastPrompt string
}

func (s *scriptedCompleter) Complete(_ context.Context, req completion.Request) (*completion.Response, error) {
	s.calls++
	s.lastPrompt = req.Prompt
	if s.err != nil {
		return nil, s.err
	}
	return &completion.Response{Text: s.text, Model: "scripted"}, nil
}

func testRegistry() *tools.Registry {
	return tools.NewRegistry(
		tools.Spec{Name: "calendar.list"},
		tools.Spec{Name: "mail.send"},
	)
}

func TestRouteGreeting(t *testing.T) {
	c := &scriptedCompleter{text: `{"route":"smalltalk","intent":"greeting","slots":{},"confidence":1.0,"tools":[],"reply":"Merhaba!"}`}
	r := New(c, testRegistry())

	d := r.Route(context.Background(), Input{Utterance: "merhaba"})

	if d.Route != RouteSmalltalk {
		t.Errorf("expected smalltalk, got %s", d.Route)
	}
	if d.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %f", d.Confidence)
	}
	if len(d.ToolPlan) != 0 {
		t.Errorf("greeting must not plan tools, got %v", d.ToolPlan)
	}
	if d.Fallback {
		t.Error("clean parse must not be marked fallback")
	}
}

func TestRouteLowConfidenceZeroesToolPlan(t *testing.T) {
	c := &scriptedCompleter{text: `{"route":"calendar","intent":"list_events","slots":{"date":"tomorrow"},"confidence":0.5,"tools":["calendar.list"],"reply":"checking"}`}
	r := New(c, testRegistry(), WithThreshold(0.7))

	d := r.Route(context.Background(), Input{Utterance: "takvimde ne var"})

	if d.Route != RouteCalendar {
		t.Errorf("expected calendar, got %s", d.Route)
	}
	if len(d.ToolPlan) != 0 {
		t.Fatalf("confidence 0.5 under threshold 0.7 must force an empty plan, got %v", d.ToolPlan)
	}
}

func TestRouteConfidenceAtThresholdKeepsPlan(t *testing.T) {
	c := &scriptedCompleter{text: `{"route":"calendar","confidence":0.7,"tools":["calendar.list"]}`}
	r := New(c, testRegistry(), WithThreshold(0.7))

	d := r.Route(context.Background(), Input{Utterance: "what's tomorrow"})

	if len(d.ToolPlan) != 1 || d.ToolPlan[0] != "calendar.list" {
		t.Errorf("plan at the threshold should survive, got %v", d.ToolPlan)
	}
}

func TestRouteParsesFencedOutput(t *testing.T) {
	c := &scriptedCompleter{text: "```json\n{\"route\":\"mail\",\"intent\":\"send_mail\",\"confidence\":0.9,\"tools\":[\"mail.send\"],\"reply\":\"ok\"}\n```"}
	r := New(c, testRegistry())

	d := r.Route(context.Background(), Input{Utterance: "email deniz"})

	if d.Route != RouteMail {
		t.Errorf("expected mail, got %s", d.Route)
	}
	if len(d.ToolPlan) != 1 {
		t.Errorf("expected one planned tool, got %v", d.ToolPlan)
	}
}

func TestRouteParsesProseWrappedJSON(t *testing.T) {
	c := &scriptedCompleter{text: `Sure! Here is the decision: {"route":"music","confidence":0.8,"tools":[],"reply":"🎵"} hope that helps`}
	r := New(c, testRegistry())

	d := r.Route(context.Background(), Input{Utterance: "play something"})

	if d.Route != RouteMusic {
		t.Errorf("expected music, got %s", d.Route)
	}
}

func TestRouteFallbackOnGarbage(t *testing.T) {
	c := &scriptedCompleter{text: "I am not JSON at all"}
	r := New(c, testRegistry())

	d := r.Route(context.Background(), Input{Utterance: "???"})

	if !d.Fallback {
		t.Fatal("expected fallback decision")
	}
	if d.Route != RouteUnknown || d.Confidence != 0 {
		t.Errorf("fallback must be unknown/0, got %s/%f", d.Route, d.Confidence)
	}
	if len(d.ToolPlan) != 0 {
		t.Errorf("fallback must not plan tools, got %v", d.ToolPlan)
	}
	if d.Reply != FallbackReply {
		t.Errorf("fallback must use the canned apology, got %q", d.Reply)
	}
}

func TestRouteFallbackOnCompletionError(t *testing.T) {
	c := &scriptedCompleter{err: errors.New("connection refused")}
	r := New(c, testRegistry())

	d := r.Route(context.Background(), Input{Utterance: "merhaba"})

	if !d.Fallback || d.Route != RouteUnknown {
		t.Errorf("completion failure must fall back, got %+v", d)
	}
}

func TestRouteClampsConfidence(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want float64
	}{
		{`{"route":"smalltalk","confidence":1.7}`, 1.0},
		{`{"route":"smalltalk","confidence":-0.3}`, 0.0},
	} {
		c := &scriptedCompleter{text: tc.raw}
		d := New(c, testRegistry()).Route(context.Background(), Input{Utterance: "hey"})
		if d.Confidence != tc.want {
			t.Errorf("confidence %s: got %f, want %f", tc.raw, d.Confidence, tc.want)
		}
	}
}

func TestRouteNormalizesUnknownRoute(t *testing.T) {
	c := &scriptedCompleter{text: `{"route":"world_domination","confidence":0.99,"tools":[]}`}
	r := New(c, testRegistry())

	d := r.Route(context.Background(), Input{Utterance: "hmm"})

	if d.Route != RouteUnknown {
		t.Errorf("invented route must normalize to unknown, got %s", d.Route)
	}
}

func TestRouteDropsUnregisteredTools(t *testing.T) {
	c := &scriptedCompleter{text: `{"route":"calendar","confidence":0.9,"tools":["calendar.list","time.travel"]}`}
	r := New(c, testRegistry())

	d := r.Route(context.Background(), Input{Utterance: "tomorrow?"})

	if len(d.ToolPlan) != 1 || d.ToolPlan[0] != "calendar.list" {
		t.Errorf("unregistered tool should be dropped, got %v", d.ToolPlan)
	}
	if len(d.DroppedTools) != 1 || d.DroppedTools[0] != "time.travel" {
		t.Errorf("dropped tools should be recorded, got %v", d.DroppedTools)
	}
}

func TestRouteStringifiesMixedSlots(t *testing.T) {
	c := &scriptedCompleter{text: `{"route":"calendar","confidence":0.9,"slots":{"date":"friday","count":3,"all_day":true}}`}
	r := New(c, testRegistry())

	d := r.Route(context.Background(), Input{Utterance: "friday plans"})

	if d.Slots["date"] != "friday" || d.Slots["count"] != "3" || d.Slots["all_day"] != "true" {
		t.Errorf("slots not normalized: %v", d.Slots)
	}
}

func TestPromptCarriesContextBlocks(t *testing.T) {
	c := &scriptedCompleter{text: `{"route":"smalltalk","confidence":1.0}`}
	r := New(c, testRegistry())

	r.Route(context.Background(), Input{
		Utterance:      "devam edelim",
		DialogSummary:  "user planned a trip to Izmir",
		MemoryText:     "user prefers morning flights",
		SessionContext: map[string]string{"lang": "tr"},
	})

	for _, want := range []string{"Conversation so far:", "Relevant memory:", "Session:", "lang: tr", "devam edelim", "calendar.list"} {
		if !strings.Contains(c.lastPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestPromptTrimsLongContextAndRecordsIt(t *testing.T) {
	c := &scriptedCompleter{text: `{"route":"smalltalk","confidence":1.0}`}
	r := New(c, testRegistry(), WithBudgetPlan(budgetPlanSmall()))

	d := r.Route(context.Background(), Input{
		Utterance:     "hi",
		DialogSummary: strings.Repeat("çok uzun bir özet ", 500),
	})

	if len(d.TrimmedSections) == 0 {
		t.Fatal("expected trimmed sections to be recorded")
	}
	if d.TrimmedSections[0] != "dialog" {
		t.Errorf("expected dialog trimmed first, got %v", d.TrimmedSections)
	}
}
