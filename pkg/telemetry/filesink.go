package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TurnRecord is the on-disk shape of one completed turn: every event the
// pipeline emitted for it, oldest first.
type TurnRecord struct {
	Schema string  `json:"schema"`
	TurnID string  `json:"turn_id"`
	Events []Event `json:"events"`
}

// FileSink buffers events per turn and writes turns/<turn_id>.json once the
// turn.end event arrives. Events without a turn ID are dropped; breaker
// transitions and other out-of-turn records belong in the other sinks.
type FileSink struct {
	mu      sync.Mutex
	baseDir string
	open    map[string][]Event
}

// NewFileSink prepares baseDir/turns and returns a sink writing there.
func NewFileSink(baseDir string) (*FileSink, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("telemetry: base directory is empty")
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "turns"), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}
	return &FileSink{baseDir: baseDir, open: make(map[string][]Event)}, nil
}

func (s *FileSink) Record(_ context.Context, ev Event) error {
	if ev.TurnID == "" {
		return nil
	}
	ev = stamp(ev)
	s.mu.Lock()
	s.open[ev.TurnID] = append(s.open[ev.TurnID], ev)
	if ev.Type != EventTurnEnd {
		s.mu.Unlock()
		return nil
	}
	events := s.open[ev.TurnID]
	delete(s.open, ev.TurnID)
	s.mu.Unlock()
	return s.flush(ev.TurnID, events)
}

// Close flushes turns that never saw a turn.end event, so an aborted run
// still leaves its partial trace on disk.
func (s *FileSink) Close() error {
	s.mu.Lock()
	open := s.open
	s.open = make(map[string][]Event)
	s.mu.Unlock()

	var first error
	for turnID, events := range open {
		if err := s.flush(turnID, events); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *FileSink) flush(turnID string, events []Event) error {
	path := filepath.Join(s.baseDir, "turns", turnID+".json")
	return writeJSON(path, TurnRecord{Schema: Schema, TurnID: turnID, Events: events})
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
