// Package telemetry records what the turn pipeline did: one event per stage
// boundary, fanned out to pluggable sinks, plus a Prometheus metrics bundle.
// Recording is best effort and never required for a turn to complete.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Schema tags every record with the layout version it was written under.
const Schema = "turnpike.event.v1"

// DefaultMemoryCapacity bounds the in-memory ring when no capacity is given.
const DefaultMemoryCapacity = 4096

// EventType names one point in the turn lifecycle.
type EventType string

const (
	EventTurnStart         EventType = "turn.start"
	EventRouterDecision    EventType = "router.decision"
	EventVerifyOutcome     EventType = "verify.outcome"
	EventReflectionVerdict EventType = "reflection.verdict"
	EventGateDecision      EventType = "gate.decision"
	EventCompressLevel     EventType = "compress.level"
	EventFinalizeDone      EventType = "finalize.done"
	EventTurnEnd           EventType = "turn.end"

	// EventBreakerState sits outside the per-turn sequence: it is emitted
	// whenever the remote-tier circuit breaker changes state.
	EventBreakerState EventType = "breaker.state"
)

// Event is a single telemetry record. Sinks receive events already stamped
// with schema, ID and timestamp; Record backfills any stamp the caller left
// zero.
type Event struct {
	Schema    string         `json:"schema"`
	ID        string         `json:"id"`
	TurnID    string         `json:"turn_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration_ns,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives telemetry events. Implementations must be safe for
// concurrent use; the pipeline logs a sink error and moves on.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

func stamp(ev Event) Event {
	if ev.Schema == "" {
		ev.Schema = Schema
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Record(context.Context, Event) error { return nil }

// MemorySink keeps the most recent events in a bounded ring, oldest evicted
// first. It backs the repl's history view and most tests.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
	cap    int
}

// NewMemorySink returns a sink holding at most capacity events.
// Non-positive capacities fall back to DefaultMemoryCapacity.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemorySink{cap: capacity}
}

func (s *MemorySink) Record(_ context.Context, ev Event) error {
	ev = stamp(ev)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= s.cap {
		drop := len(s.events) - s.cap + 1
		s.events = append(s.events[:0], s.events[drop:]...)
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the buffered events, oldest first.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByTurn returns the buffered events for one turn, oldest first.
func (s *MemorySink) ByTurn(turnID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.events {
		if ev.TurnID == turnID {
			out = append(out, ev)
		}
	}
	return out
}

// Len reports how many events are currently buffered.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// MultiSink fans every event out to all children. Each child sees the event
// even when an earlier one fails; the first error is returned.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, ev Event) error {
	ev = stamp(ev)
	var first error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
