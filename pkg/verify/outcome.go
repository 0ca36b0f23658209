package verify

import (
	"time"

	"github.com/zen-systems/turnpike/pkg/tools"
)

// ToolState is the verification state of one tool result. Every result
// starts pending and ends in exactly one of the other states.
type ToolState string

const (
	StatePending ToolState = "pending"
	StateOK      ToolState = "ok"
	StateEmpty   ToolState = "empty"
	StateErrored ToolState = "errored"

	// StateFailed is terminal: the result stayed bad after its retry, or
	// no retry was possible.
	StateFailed ToolState = "failed"
)

// ToolOutcome pairs an invocation result with its final state.
type ToolOutcome struct {
	Result  tools.InvocationResult `json:"result"`
	State   ToolState              `json:"state"`
	Retried bool                   `json:"retried,omitempty"`
}

// Outcome aggregates one turn's tool verification. Verified is true only
// when every planned tool ended ok, originally or after its retry.
type Outcome struct {
	Verified     bool          `json:"verified"`
	ToolsOK      int           `json:"tools_ok"`
	ToolsRetried int           `json:"tools_retried"`
	ToolsFailed  int           `json:"tools_failed"`
	Tools        []ToolOutcome `json:"tools,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
}

// classify maps a result to its verification state. Errored wins over empty:
// a failed call with a nil payload is an error, not an empty answer.
func classify(res tools.InvocationResult, allowEmpty tools.AllowEmpty) ToolState {
	if res.Errored() {
		return StateErrored
	}
	if tools.IsEmptyPayload(res.Raw) && !allowEmpty.Contains(res.Tool) {
		return StateEmpty
	}
	return StateOK
}
