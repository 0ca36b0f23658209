// Package pipeline wires the turn stages together: route, verify, reflect,
// gate, compress, finalize. One Pipeline serves many concurrent turns; all
// shared state lives in the injected collaborators, never in package globals.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zen-systems/turnpike/pkg/compress"
	"github.com/zen-systems/turnpike/pkg/finalize"
	"github.com/zen-systems/turnpike/pkg/gate"
	"github.com/zen-systems/turnpike/pkg/quota"
	"github.com/zen-systems/turnpike/pkg/reflection"
	"github.com/zen-systems/turnpike/pkg/router"
	"github.com/zen-systems/turnpike/pkg/telemetry"
	"github.com/zen-systems/turnpike/pkg/tools"
	"github.com/zen-systems/turnpike/pkg/verify"
)

// Deps carries every collaborator a Pipeline needs. Router, Verifier, Gate
// and Finalizer are required. A nil Reflector disables the reflection stage;
// nil Quota, Sink and Metrics disable their concerns.
type Deps struct {
	Router    *router.Router
	Verifier  *verify.Loop
	Reflector *reflection.Engine
	Gate      *gate.Gate
	Quota     *quota.RateBudget
	Finalizer *finalize.Finalizer

	// Runtime, when set, supplies the verify loop's one-shot retrier.
	Runtime tools.Runtime

	Sink    telemetry.Sink
	Metrics *telemetry.Metrics
	Log     zerolog.Logger
}

// TurnRequest is one user utterance plus its session context.
type TurnRequest struct {
	Utterance      string
	SessionID      string
	DialogSummary  string
	MemoryText     string
	SessionContext map[string]string
}

// TurnResult collects every stage product for one completed turn.
type TurnResult struct {
	TurnID     string             `json:"turn_id"`
	SessionID  string             `json:"session_id,omitempty"`
	Utterance  string             `json:"utterance"`
	Decision   *router.Decision   `json:"decision"`
	Outcome    verify.Outcome     `json:"outcome"`
	Verdict    reflection.Verdict `json:"verdict"`
	Gate       gate.Decision      `json:"gate"`
	Compressed compress.Result    `json:"compressed"`
	Reply      finalize.Reply     `json:"reply"`
	Elapsed    time.Duration      `json:"elapsed"`
}

// Pipeline executes turns. Safe for concurrent use.
type Pipeline struct {
	router    *router.Router
	verifier  *verify.Loop
	reflector *reflection.Engine
	gate      *gate.Gate
	quota     *quota.RateBudget
	finalizer *finalize.Finalizer
	runtime   tools.Runtime
	sink      telemetry.Sink
	metrics   *telemetry.Metrics
	log       zerolog.Logger
}

// New validates the dependency set and returns a ready Pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Router == nil {
		return nil, fmt.Errorf("pipeline: router is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("pipeline: verify loop is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("pipeline: gate is required")
	}
	if deps.Finalizer == nil {
		return nil, fmt.Errorf("pipeline: finalizer is required")
	}

	p := &Pipeline{
		router:    deps.Router,
		verifier:  deps.Verifier,
		reflector: deps.Reflector,
		gate:      deps.Gate,
		quota:     deps.Quota,
		finalizer: deps.Finalizer,
		runtime:   deps.Runtime,
		sink:      deps.Sink,
		metrics:   deps.Metrics,
		log:       deps.Log,
	}
	if p.sink == nil {
		p.sink = telemetry.NopSink{}
	}
	return p, nil
}

// BreakerHook returns a state-change hook for gate.NewBreaker that emits a
// breaker.state event and counts trips. The hook runs under the breaker's
// lock, so it only records and returns.
func BreakerHook(sink telemetry.Sink, metrics *telemetry.Metrics) func(from, to string) {
	return func(from, to string) {
		if metrics != nil && to == gate.StateOpen {
			metrics.BreakerTripped()
		}
		if sink != nil {
			_ = sink.Record(context.Background(), telemetry.Event{
				Type: telemetry.EventBreakerState,
				Data: map[string]any{"from": from, "to": to},
			})
		}
	}
}
