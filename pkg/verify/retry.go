package verify

import (
	"context"

	"github.com/zen-systems/turnpike/pkg/tools"
)

// RetryPolicy is the value object governing which bad results get retried.
// MaxAttempts counts retries per tool beyond the first call.
type RetryPolicy struct {
	MaxAttempts  int
	RetryErrored bool
	RetryEmpty   bool
}

// DefaultRetryPolicy retries each errored or empty tool once.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, RetryErrored: true, RetryEmpty: true}
}

func (p RetryPolicy) qualifies(state ToolState) bool {
	switch state {
	case StateErrored:
		return p.RetryErrored
	case StateEmpty:
		return p.RetryEmpty
	}
	return false
}

// Retrier re-runs one bad tool call and returns the replacement result.
type Retrier func(ctx context.Context, tool string, original tools.InvocationResult) tools.InvocationResult

// RetryViaRuntime builds a Retrier that re-executes the tool through the
// runtime with the same parameters.
func RetryViaRuntime(rt tools.Runtime, params map[string]string) Retrier {
	return func(ctx context.Context, tool string, original tools.InvocationResult) tools.InvocationResult {
		raw, err := rt.Execute(ctx, tool, params)
		res := tools.InvocationResult{
			Tool:    tool,
			Success: err == nil,
			Raw:     raw,
			Summary: tools.Summarize(raw),
			Retries: original.Retries + 1,
		}
		if err != nil {
			res.Error = err.Error()
		}
		return res
	}
}
