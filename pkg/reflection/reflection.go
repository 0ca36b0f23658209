package reflection

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zen-systems/turnpike/pkg/completion"
	"github.com/zen-systems/turnpike/pkg/tools"
)

// Trigger causes, recorded on the verdict so telemetry can tell why the
// extra model pass ran.
const (
	CauseToolErrored   = "tool_errored"
	CauseToolEmpty     = "tool_empty"
	CauseLowConfidence = "low_confidence"
)

// Degradation reason tags. Reflection never blocks a turn, so a broken
// verification call collapses to a satisfied verdict carrying one of these.
const (
	ReasonParseError      = "parse_error"
	ReasonCompletionError = "completion_error"
)

// DefaultThreshold is the router confidence below which reflection runs even
// when every tool succeeded. It sits below the router's own tool-plan
// threshold: a turn can keep its tools yet still warrant a second look.
const DefaultThreshold = 0.4

const (
	defaultCharBudget = 600
	defaultMaxTokens  = 256
)

// Turn is the slice of a turn's state that reflection inspects.
type Turn struct {
	Utterance  string
	Confidence float64
	Results    []tools.InvocationResult
}

// Verdict is the outcome of one reflection pass. The zero verdict means
// reflection did not trigger; callers treat an untriggered turn as satisfied.
type Verdict struct {
	Triggered  bool          `json:"triggered"`
	Satisfied  bool          `json:"satisfied"`
	Reason     string        `json:"reason,omitempty"`
	Corrective string        `json:"corrective,omitempty"`
	Cause      string        `json:"cause,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

// Unsatisfied reports whether reflection ran and judged the turn short of
// the user's request.
func (v Verdict) Unsatisfied() bool {
	return v.Triggered && !v.Satisfied
}

type rawVerdict struct {
	Satisfied        bool   `json:"satisfied"`
	Reason           string `json:"reason"`
	CorrectiveAction string `json:"corrective_action"`
}

// Engine runs a cheap second model pass when heuristics suspect the tool
// outcome did not satisfy the request.
type Engine struct {
	completer   completion.Completer
	allowEmpty  tools.AllowEmpty
	threshold   float64
	charBudget  int
	temperature float64
	maxTokens   int
	log         zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the confidence floor below which reflection triggers.
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithAllowEmpty sets the tools for which an empty result does not trigger
// reflection.
func WithAllowEmpty(a tools.AllowEmpty) Option {
	return func(e *Engine) { e.allowEmpty = a }
}

// WithCharBudget caps how much tool material the reflection prompt carries.
func WithCharBudget(n int) Option {
	return func(e *Engine) { e.charBudget = n }
}

// WithLogger sets the engine's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates a reflection engine over the given completer, normally the
// fast tier.
func New(c completion.Completer, opts ...Option) *Engine {
	e := &Engine{
		completer:  c,
		allowEmpty: tools.AllowEmpty{},
		threshold:  DefaultThreshold,
		charBudget: defaultCharBudget,
		maxTokens:  defaultMaxTokens,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Inspect evaluates the trigger heuristic and, when it fires, asks the model
// whether the turn satisfied the request. It never returns an error: a
// broken verification call must not turn a successful tool execution into a
// failure, so both completion and parse problems degrade to satisfied.
func (e *Engine) Inspect(ctx context.Context, t Turn) Verdict {
	cause, ok := e.trigger(t)
	if !ok {
		return Verdict{}
	}

	start := time.Now()
	v := Verdict{Triggered: true, Cause: cause}

	prompt := buildPrompt(t, e.problematic(t), e.charBudget)
	resp, err := e.completer.Complete(ctx, completion.Request{
		Prompt:      prompt,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("cause", cause).Msg("reflection call failed, assuming satisfied")
		v.Satisfied = true
		v.Reason = ReasonCompletionError
		v.Elapsed = time.Since(start)
		return v
	}

	var raw rawVerdict
	if err := completion.DecodeJSON(resp.Text, &raw); err != nil {
		e.log.Warn().Err(err).Msg("unparseable reflection verdict, assuming satisfied")
		v.Satisfied = true
		v.Reason = ReasonParseError
		v.Elapsed = time.Since(start)
		return v
	}

	v.Satisfied = raw.Satisfied
	v.Reason = strings.TrimSpace(raw.Reason)
	v.Corrective = strings.TrimSpace(raw.CorrectiveAction)
	v.Elapsed = time.Since(start)

	e.log.Debug().
		Bool("satisfied", v.Satisfied).
		Str("cause", cause).
		Dur("elapsed", v.Elapsed).
		Msg("reflection verdict")
	return v
}

// trigger reports whether reflection should run and why. Errored results
// take precedence over empty ones, which take precedence over confidence.
func (e *Engine) trigger(t Turn) (string, bool) {
	for _, r := range t.Results {
		if r.Errored() {
			return CauseToolErrored, true
		}
	}
	for _, r := range t.Results {
		if r.Empty() && !e.allowEmpty.Contains(r.Tool) {
			return CauseToolEmpty, true
		}
	}
	if t.Confidence < e.threshold {
		return CauseLowConfidence, true
	}
	return "", false
}

// problematic picks the result the prompt should name: the first errored
// one, else the first non-allow-listed empty one, else the last result.
func (e *Engine) problematic(t Turn) *tools.InvocationResult {
	if len(t.Results) == 0 {
		return nil
	}
	for i := range t.Results {
		if t.Results[i].Errored() {
			return &t.Results[i]
		}
	}
	for i := range t.Results {
		if t.Results[i].Empty() && !e.allowEmpty.Contains(t.Results[i].Tool) {
			return &t.Results[i]
		}
	}
	return &t.Results[len(t.Results)-1]
}
