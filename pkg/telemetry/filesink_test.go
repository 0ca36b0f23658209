package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSinkWritesTurnFileOnEnd(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	ctx := context.Background()

	sink.Record(ctx, Event{TurnID: "turn-1", Type: EventTurnStart})
	sink.Record(ctx, Event{TurnID: "turn-1", Type: EventRouterDecision, Data: map[string]any{"route": "calendar"}})

	path := filepath.Join(dir, "turns", "turn-1.json")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("turn file written before turn.end")
	}

	if err := sink.Record(ctx, Event{TurnID: "turn-1", Type: EventTurnEnd}); err != nil {
		t.Fatalf("Record turn.end: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read turn file: %v", err)
	}
	var rec TurnRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("decode turn file: %v", err)
	}
	if rec.Schema != Schema {
		t.Errorf("schema = %q, want %q", rec.Schema, Schema)
	}
	if rec.TurnID != "turn-1" {
		t.Errorf("turn_id = %q, want turn-1", rec.TurnID)
	}
	if len(rec.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(rec.Events))
	}
	if rec.Events[1].Data["route"] != "calendar" {
		t.Errorf("router event data lost: %v", rec.Events[1].Data)
	}
}

func TestFileSinkCloseFlushesOpenTurns(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	ctx := context.Background()

	sink.Record(ctx, Event{TurnID: "dangling", Type: EventTurnStart})
	sink.Record(ctx, Event{TurnID: "dangling", Type: EventRouterDecision})

	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "turns", "dangling.json"))
	if err != nil {
		t.Fatalf("read flushed file: %v", err)
	}
	var rec TurnRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("decode flushed file: %v", err)
	}
	if len(rec.Events) != 2 {
		t.Errorf("got %d events, want 2", len(rec.Events))
	}
}

func TestFileSinkDropsEventsWithoutTurnID(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	if err := sink.Record(context.Background(), Event{Type: EventBreakerState}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "turns"))
	if err != nil {
		t.Fatalf("read turns dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d files, want none", len(entries))
	}
}

func TestNewFileSinkRejectsEmptyDir(t *testing.T) {
	if _, err := NewFileSink(""); err == nil {
		t.Fatal("expected error for empty base directory")
	}
}
