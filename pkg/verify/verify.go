package verify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/zen-systems/turnpike/pkg/tools"
)

// Loop executes a tool plan through the runtime and verifies what came back.
type Loop struct {
	runtime    tools.Runtime
	allowEmpty tools.AllowEmpty
	policy     RetryPolicy
	timeout    time.Duration
	log        zerolog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithAllowEmpty sets the tools for which empty results are valid answers.
func WithAllowEmpty(a tools.AllowEmpty) LoopOption {
	return func(l *Loop) { l.allowEmpty = a }
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) LoopOption {
	return func(l *Loop) { l.policy = p }
}

// WithCallTimeout bounds each individual tool call. A timed-out call is an
// errored result, indistinguishable from any other tool error.
func WithCallTimeout(d time.Duration) LoopOption {
	return func(l *Loop) { l.timeout = d }
}

// WithLogger sets the loop's logger.
func WithLogger(log zerolog.Logger) LoopOption {
	return func(l *Loop) { l.log = log }
}

// NewLoop creates a verify loop over the given runtime.
func NewLoop(rt tools.Runtime, opts ...LoopOption) *Loop {
	l := &Loop{
		runtime:    rt,
		allowEmpty: tools.AllowEmpty{},
		policy:     DefaultRetryPolicy(),
		timeout:    30 * time.Second,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes every tool in the plan with the given parameters and returns
// the aggregated outcome. A cancelled context surfaces as errored results
// for the remaining tools; every planned tool always gets a recorded result.
func (l *Loop) Run(ctx context.Context, plan []string, params map[string]string, retry Retrier) Outcome {
	start := time.Now()
	out := Outcome{Tools: make([]ToolOutcome, 0, len(plan))}

	for _, tool := range plan {
		res := l.execute(ctx, tool, params)
		state := classify(res, l.allowEmpty)

		retried := false
		if state != StateOK && l.policy.qualifies(state) && l.policy.MaxAttempts > 0 && retry != nil {
			res, state = l.retryOnce(ctx, tool, res, retry)
			retried = true
		} else if state != StateOK {
			state = StateFailed
		}

		to := ToolOutcome{Result: res, State: state, Retried: retried}
		to.Result.Summary = ensureSummary(to.Result)
		out.Tools = append(out.Tools, to)

		switch state {
		case StateOK:
			out.ToolsOK++
		default:
			out.ToolsFailed++
		}
		if retried {
			out.ToolsRetried++
		}
	}

	out.Verified = out.ToolsFailed == 0
	out.Elapsed = time.Since(start)
	return out
}

// execute runs one tool call under the per-call timeout.
func (l *Loop) execute(ctx context.Context, tool string, params map[string]string) tools.InvocationResult {
	callCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	raw, err := l.runtime.Execute(callCtx, tool, params)
	res := tools.InvocationResult{
		Tool:    tool,
		Success: err == nil,
		Raw:     raw,
		Summary: tools.Summarize(raw),
	}
	if err != nil {
		res.Error = err.Error()
		l.log.Warn().Str("tool", tool).Err(err).Msg("tool call failed")
	}
	return res
}

// retryOnce invokes the retrier and re-classifies its replacement result. A
// panicking retrier counts as a failed retry and keeps the original result.
func (l *Loop) retryOnce(ctx context.Context, tool string, original tools.InvocationResult, retry Retrier) (res tools.InvocationResult, state ToolState) {
	res = original
	state = StateFailed

	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Str("tool", tool).Any("panic", r).Msg("retrier panicked, counting as failed retry")
			res = original
			if res.Retries == 0 {
				res.Retries = 1
			}
			state = StateFailed
		}
	}()

	replacement := retry(ctx, tool, original)
	if replacement.Tool == "" {
		replacement.Tool = tool
	}
	if replacement.Retries == 0 {
		replacement.Retries = original.Retries + 1
	}

	if s := classify(replacement, l.allowEmpty); s == StateOK {
		return replacement, StateOK
	}
	return replacement, StateFailed
}

func ensureSummary(res tools.InvocationResult) string {
	if res.Summary != "" {
		return res.Summary
	}
	if res.Error != "" {
		return res.Error
	}
	return tools.Summarize(res.Raw)
}
