package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zen-systems/turnpike/pkg/completion"
	"github.com/zen-systems/turnpike/pkg/finalize"
	"github.com/zen-systems/turnpike/pkg/gate"
	"github.com/zen-systems/turnpike/pkg/quota"
	"github.com/zen-systems/turnpike/pkg/reflection"
	"github.com/zen-systems/turnpike/pkg/router"
	"github.com/zen-systems/turnpike/pkg/telemetry"
	"github.com/zen-systems/turnpike/pkg/tools"
	"github.com/zen-systems/turnpike/pkg/verify"
)

const calendarDecision = `{"route":"calendar","intent":"list_events","slots":{"day":"today"},` +
	`"confidence":0.9,"tools":["calendar.list_events"],"reply":"Let me check your calendar."}`

const smalltalkDecision = `{"route":"smalltalk","intent":"greeting","confidence":0.95,` +
	`"reply":"Hello! How can I help?"}`

type fixture struct {
	router  *completion.Mock
	quality *completion.Mock
	runtime *tools.FuncRuntime
	sink    *telemetry.MemorySink
	breaker *gate.Breaker
	quota   *quota.RateBudget
	gate    []gate.Option
	noRefl  bool
}

func newFixture() *fixture {
	f := &fixture{
		router:  completion.NewMock(smalltalkDecision),
		quality: completion.NewMock("All done."),
		runtime: tools.NewFuncRuntime(),
		sink:    telemetry.NewMemorySink(64),
	}
	f.runtime.Handle("calendar.list_events", func(ctx context.Context, params map[string]string) (any, error) {
		return []string{"standup 09:30", "retro 16:00"}, nil
	})
	return f
}

func (f *fixture) build(t *testing.T) *Pipeline {
	t.Helper()

	registry := tools.NewRegistry(
		tools.Spec{Name: "calendar.list_events", Description: "List calendar events."},
		tools.Spec{Name: "mail.search", Description: "Search mail."},
	)
	rt := router.New(f.router, registry)
	loop := verify.NewLoop(f.runtime,
		verify.WithAllowEmpty(tools.NewAllowEmpty("calendar.list_events", "mail.search")))

	gateOpts := f.gate
	if f.breaker != nil {
		gateOpts = append(gateOpts, gate.WithBreaker(f.breaker))
	}
	g := gate.New(gateOpts...)

	fin := finalize.New(
		finalize.Tier{Completer: completion.NewMock("Quick answer."), ContextWindow: 8192},
		finalize.Tier{Completer: f.quality, ContextWindow: 32768},
	)

	var refl *reflection.Engine
	if !f.noRefl {
		refl = reflection.New(completion.NewMock(`{"satisfied":true}`))
	}

	p, err := New(Deps{
		Router:    rt,
		Verifier:  loop,
		Reflector: refl,
		Gate:      g,
		Quota:     f.quota,
		Finalizer: fin,
		Runtime:   f.runtime,
		Sink:      f.sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func eventTypes(events []telemetry.Event) []telemetry.EventType {
	out := make([]telemetry.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestNewRequiresCoreDeps(t *testing.T) {
	f := newFixture()
	good := f.build(t)
	if good == nil {
		t.Fatal("expected pipeline")
	}

	tests := []struct {
		name  string
		strip func(*Deps)
	}{
		{"router", func(d *Deps) { d.Router = nil }},
		{"verifier", func(d *Deps) { d.Verifier = nil }},
		{"gate", func(d *Deps) { d.Gate = nil }},
		{"finalizer", func(d *Deps) { d.Finalizer = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{
				Router:    good.router,
				Verifier:  good.verifier,
				Gate:      good.gate,
				Finalizer: good.finalizer,
			}
			tt.strip(&deps)
			if _, err := New(deps); err == nil {
				t.Fatalf("expected error when %s is missing", tt.name)
			}
		})
	}
}

func TestRunSmalltalkTurn(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	res, err := p.Run(context.Background(), TurnRequest{Utterance: "hey there", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TurnID == "" {
		t.Error("expected a turn id")
	}
	if res.Decision.Route != router.RouteSmalltalk {
		t.Errorf("route = %q, want smalltalk", res.Decision.Route)
	}
	if len(res.Outcome.Tools) != 0 {
		t.Errorf("expected no tool executions, got %d", len(res.Outcome.Tools))
	}
	if !res.Outcome.Verified {
		t.Error("empty plan should verify")
	}
	if res.Gate.Tier != gate.TierFast {
		t.Errorf("tier = %q, want fast for smalltalk", res.Gate.Tier)
	}
	if res.Reply.Text != "Quick answer." {
		t.Errorf("reply = %q", res.Reply.Text)
	}
	if res.Reply.Fallback {
		t.Error("mock reply should not be a fallback")
	}
}

func TestRunToolTurnEmitsFullEventSequence(t *testing.T) {
	f := newFixture()
	f.router.Default = calendarDecision
	p := f.build(t)

	res, err := p.Run(context.Background(), TurnRequest{Utterance: "what is on my calendar today", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Decision.Route != router.RouteCalendar {
		t.Errorf("route = %q, want calendar", res.Decision.Route)
	}
	if res.Outcome.ToolsOK != 1 || !res.Outcome.Verified {
		t.Errorf("outcome = %+v, want one verified tool", res.Outcome)
	}

	events := f.sink.ByTurn(res.TurnID)
	want := []telemetry.EventType{
		telemetry.EventTurnStart,
		telemetry.EventRouterDecision,
		telemetry.EventVerifyOutcome,
		telemetry.EventReflectionVerdict,
		telemetry.EventGateDecision,
		telemetry.EventCompressLevel,
		telemetry.EventFinalizeDone,
		telemetry.EventTurnEnd,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	for _, ev := range events {
		if ev.SessionID != "s1" {
			t.Errorf("event %s session = %q, want s1", ev.Type, ev.SessionID)
		}
	}
}

func TestRunSkipsReflectionWhenUnwired(t *testing.T) {
	f := newFixture()
	f.noRefl = true
	p := f.build(t)

	res, err := p.Run(context.Background(), TurnRequest{Utterance: "hi"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Verdict.Triggered {
		t.Error("verdict should stay zero without a reflector")
	}
	for _, ev := range f.sink.ByTurn(res.TurnID) {
		if ev.Type == telemetry.EventReflectionVerdict {
			t.Error("no reflection event expected")
		}
	}
}

func TestRunRetriesErroredTool(t *testing.T) {
	f := newFixture()
	f.router.Default = calendarDecision
	calls := 0
	f.runtime.Handle("calendar.list_events", func(ctx context.Context, params map[string]string) (any, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("transient backend error")
		}
		return []string{"standup 09:30"}, nil
	})
	p := f.build(t)

	res, err := p.Run(context.Background(), TurnRequest{Utterance: "calendar today"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
	if res.Outcome.ToolsRetried != 1 {
		t.Errorf("retried = %d, want 1", res.Outcome.ToolsRetried)
	}
	if !res.Outcome.Verified {
		t.Error("retry should rescue the turn")
	}
}

func TestRunAbortsBetweenStages(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx, TurnRequest{Utterance: "hello"})
	if res != nil {
		t.Error("aborted run should return no result")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	var sawEnd, sawVerify bool
	for _, ev := range f.sink.Events() {
		switch ev.Type {
		case telemetry.EventTurnEnd:
			sawEnd = true
			if ev.Error == "" {
				t.Error("abort turn.end should carry the error")
			}
		case telemetry.EventVerifyOutcome:
			sawVerify = true
		}
	}
	if !sawEnd {
		t.Error("expected a turn.end event for the abort")
	}
	if sawVerify {
		t.Error("verify stage should not run after cancellation")
	}
}

func TestRunQualityTierSettlesBreakerAndQuota(t *testing.T) {
	f := newFixture()
	f.gate = []gate.Option{gate.WithMode(gate.ModeAlways)}
	f.breaker = gate.NewBreaker()
	f.quota = quota.New(quota.Limits{Calls: 100}, quota.Limits{})
	p := f.build(t)

	res, err := p.Run(context.Background(), TurnRequest{Utterance: "summarize my week"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Gate.Tier != gate.TierQuality {
		t.Fatalf("tier = %q, want quality", res.Gate.Tier)
	}
	if res.Reply.Fallback {
		t.Fatal("mock quality reply should succeed")
	}
	if got := f.breaker.State(); got != gate.StateClosed {
		t.Errorf("breaker state = %q, want closed after success", got)
	}
	snap := f.quota.Snapshot()
	if snap.Day.Calls != 1 {
		t.Errorf("day calls = %d, want 1 committed", snap.Day.Calls)
	}
	if snap.Day.Tokens == 0 {
		t.Error("committed tokens should be recorded")
	}
}

func TestRunQualityFallbackRecordsBreakerFailure(t *testing.T) {
	f := newFixture()
	f.gate = []gate.Option{gate.WithMode(gate.ModeAlways)}
	f.breaker = gate.NewBreaker(gate.WithFailureThreshold(1))
	f.quality.Err = errors.New("remote unavailable")
	p := f.build(t)

	res, err := p.Run(context.Background(), TurnRequest{Utterance: "summarize my week"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Reply.Fallback {
		t.Fatal("failed quality call should fall back")
	}
	if got := f.breaker.State(); got != gate.StateOpen {
		t.Errorf("breaker state = %q, want open after failure", got)
	}
}

func TestRunFastTierLeavesQuotaUntouched(t *testing.T) {
	f := newFixture()
	f.quota = quota.New(quota.Limits{Calls: 100}, quota.Limits{})
	p := f.build(t)

	if _, err := p.Run(context.Background(), TurnRequest{Utterance: "hi"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap := f.quota.Snapshot(); snap.Day.Calls != 0 {
		t.Errorf("fast tier committed %d calls, want 0", snap.Day.Calls)
	}
}

func TestBreakerHookEmitsStateEvent(t *testing.T) {
	sink := telemetry.NewMemorySink(8)
	hook := BreakerHook(sink, nil)

	hook(gate.StateClosed, gate.StateOpen)

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != telemetry.EventBreakerState {
		t.Errorf("type = %q, want breaker.state", ev.Type)
	}
	if ev.Data["from"] != gate.StateClosed || ev.Data["to"] != gate.StateOpen {
		t.Errorf("data = %v", ev.Data)
	}
}
