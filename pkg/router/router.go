package router

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/zen-systems/turnpike/pkg/budget"
	"github.com/zen-systems/turnpike/pkg/completion"
	"github.com/zen-systems/turnpike/pkg/tools"
)

// DefaultThreshold is the confidence below which a decision's tool plan is
// forced empty.
const DefaultThreshold = 0.65

// Input is everything the router may weave into its prompt. Only the
// utterance is required.
type Input struct {
	Utterance      string
	DialogSummary  string
	MemoryText     string
	SessionContext map[string]string
}

// Router turns one utterance into a Decision using the fast completer.
type Router struct {
	completer   completion.Completer
	registry    *tools.Registry
	threshold   float64
	plan        budget.Plan
	temperature float64
	maxTokens   int
	log         zerolog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithThreshold sets the confidence threshold for tool planning.
func WithThreshold(t float64) Option {
	return func(r *Router) {
		if t > 0 {
			r.threshold = t
		}
	}
}

// WithBudgetPlan sets the token budget plan used for prompt assembly.
func WithBudgetPlan(p budget.Plan) Option {
	return func(r *Router) { r.plan = p }
}

// WithTemperature sets the sampling temperature for the routing call.
func WithTemperature(t float64) Option {
	return func(r *Router) { r.temperature = t }
}

// WithLogger sets the router's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// New creates a Router over the given completer and tool registry.
func New(c completion.Completer, reg *tools.Registry, opts ...Option) *Router {
	r := &Router{
		completer:   c,
		registry:    reg,
		threshold:   DefaultThreshold,
		plan:        budget.PlanFor(8192),
		temperature: 0.1,
		maxTokens:   512,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold returns the configured confidence threshold.
func (r *Router) Threshold() float64 { return r.threshold }

// Route produces the turn's Decision. It never returns an error: completion
// failures and malformed model output both land on the safe fallback
// decision instead.
func (r *Router) Route(ctx context.Context, in Input) *Decision {
	prompt, trimReport := buildPrompt(in, r.plan, r.registryNames())

	resp, err := r.completer.Complete(ctx, completion.Request{
		Prompt:      prompt,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("routing completion failed, using fallback")
		return r.finish(fallbackDecision("", r.threshold), trimReport)
	}

	raw, err := parseDecision(resp.Text)
	if err != nil {
		r.log.Warn().Err(err).Msg("routing output unparseable, using fallback")
		return r.finish(fallbackDecision(resp.Text, r.threshold), trimReport)
	}

	d := newDecision(raw, resp.Text, false, r.threshold)
	return r.finish(r.validatePlan(d), trimReport)
}

// validatePlan drops tool names the registry does not know. It runs on the
// already-gated plan, so it can only shrink it further.
func (r *Router) validatePlan(d *Decision) *Decision {
	if r.registry == nil || len(d.ToolPlan) == 0 {
		return d
	}
	valid, dropped := r.registry.ValidatePlan(d.ToolPlan)
	if len(dropped) > 0 {
		r.log.Warn().Strs("dropped", dropped).Msg("model planned unknown tools")
		d.DroppedTools = dropped
	}
	d.ToolPlan = valid
	return d
}

func (r *Router) finish(d *Decision, report budget.TrimReport) *Decision {
	if report.Any() {
		d.TrimmedSections = report.Trimmed
		r.log.Debug().Strs("sections", report.Trimmed).Msg("prompt sections trimmed to budget")
	}
	return d
}

func (r *Router) registryNames() []string {
	if r.registry == nil {
		return nil
	}
	return r.registry.Names()
}
