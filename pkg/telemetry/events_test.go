package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type failSink struct {
	err   error
	calls int
}

func (s *failSink) Record(context.Context, Event) error {
	s.calls++
	return s.err
}

func TestMemorySinkStampsRecords(t *testing.T) {
	sink := NewMemorySink(8)
	if err := sink.Record(context.Background(), Event{Type: EventTurnStart, TurnID: "t1"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Schema != Schema {
		t.Errorf("schema = %q, want %q", ev.Schema, Schema)
	}
	if ev.ID == "" {
		t.Error("event ID not backfilled")
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not backfilled")
	}
}

func TestMemorySinkKeepsCallerStamps(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sink := NewMemorySink(8)
	if err := sink.Record(context.Background(), Event{ID: "fixed", Timestamp: ts, Type: EventTurnEnd}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ev := sink.Events()[0]
	if ev.ID != "fixed" {
		t.Errorf("ID = %q, want fixed", ev.ID)
	}
	if !ev.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, ts)
	}
}

func TestMemorySinkEvictsOldest(t *testing.T) {
	sink := NewMemorySink(3)
	for i := 0; i < 5; i++ {
		ev := Event{ID: fmt.Sprintf("e%d", i), Type: EventTurnStart}
		if err := sink.Record(context.Background(), ev); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].ID != "e2" || events[2].ID != "e4" {
		t.Errorf("kept %q..%q, want e2..e4", events[0].ID, events[2].ID)
	}
	if sink.Len() != 3 {
		t.Errorf("Len = %d, want 3", sink.Len())
	}
}

func TestMemorySinkByTurn(t *testing.T) {
	sink := NewMemorySink(8)
	ctx := context.Background()
	sink.Record(ctx, Event{TurnID: "a", Type: EventTurnStart})
	sink.Record(ctx, Event{TurnID: "b", Type: EventTurnStart})
	sink.Record(ctx, Event{TurnID: "a", Type: EventTurnEnd})

	got := sink.ByTurn("a")
	if len(got) != 2 {
		t.Fatalf("got %d events for turn a, want 2", len(got))
	}
	if got[0].Type != EventTurnStart || got[1].Type != EventTurnEnd {
		t.Errorf("events out of order: %v, %v", got[0].Type, got[1].Type)
	}
}

func TestMultiSinkDeliversToAllDespiteError(t *testing.T) {
	boom := errors.New("boom")
	bad := &failSink{err: boom}
	good := NewMemorySink(8)
	multi := MultiSink{bad, good}

	err := multi.Record(context.Background(), Event{Type: EventTurnStart})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if bad.calls != 1 {
		t.Errorf("bad sink calls = %d, want 1", bad.calls)
	}
	if good.Len() != 1 {
		t.Errorf("good sink did not receive the event")
	}
}

func TestMultiSinkStampsOnce(t *testing.T) {
	a := NewMemorySink(4)
	b := NewMemorySink(4)
	multi := MultiSink{a, b}
	if err := multi.Record(context.Background(), Event{Type: EventGateDecision}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	evA, evB := a.Events()[0], b.Events()[0]
	if evA.ID == "" || evA.ID != evB.ID {
		t.Errorf("children saw different IDs: %q vs %q", evA.ID, evB.ID)
	}
}
