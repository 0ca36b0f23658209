package finalize

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/zen-systems/turnpike/pkg/budget"
	"github.com/zen-systems/turnpike/pkg/completion"
	"github.com/zen-systems/turnpike/pkg/compress"
	"github.com/zen-systems/turnpike/pkg/gate"
)

const (
	defaultReplyTokens = 512
	defaultTemperature = 0.4
)

// Tier binds a completer to the context window its prompts must fit.
type Tier struct {
	Completer     completion.Completer
	ContextWindow int
}

// Input is everything the reply prompt draws from.
type Input struct {
	Utterance     string
	DraftReply    string
	DialogSummary string
	Tier          string
	Tools         compress.Result
}

// Reply is the finalizer's product. Fallback marks a deterministic reply
// produced without the model; the pipeline records the failed call behind
// it, the user never sees the error.
type Reply struct {
	Text             string        `json:"text"`
	Tier             string        `json:"tier"`
	Model            string        `json:"model,omitempty"`
	Fallback         bool          `json:"fallback,omitempty"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Finalizer produces the user-facing reply on the tier the gate chose.
type Finalizer struct {
	fast        Tier
	quality     Tier
	temperature float64
	maxTokens   int
	log         zerolog.Logger
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithTemperature sets the reply sampling temperature.
func WithTemperature(t float64) Option {
	return func(f *Finalizer) { f.temperature = t }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(f *Finalizer) { f.maxTokens = n }
}

// WithLogger sets the finalizer's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Finalizer) { f.log = log }
}

// New creates a finalizer over the two tiers.
func New(fast, quality Tier, opts ...Option) *Finalizer {
	f := &Finalizer{
		fast:        fast,
		quality:     quality,
		temperature: defaultTemperature,
		maxTokens:   defaultReplyTokens,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Plan returns the prompt budget plan for the named tier's context window.
// The pipeline uses it to size the compressor's share before finalizing.
func (f *Finalizer) Plan(tier string) budget.Plan {
	return budget.PlanFor(f.pick(tier).ContextWindow)
}

// Reply composes the final reply. It never returns an error: a failed model
// call degrades to a deterministic reply built from tool metadata, then to
// the router's draft, then to a canned apology.
func (f *Finalizer) Reply(ctx context.Context, in Input) Reply {
	start := time.Now()
	tier := f.pick(in.Tier)

	prompt, _ := buildPrompt(in, budget.PlanFor(tier.ContextWindow))
	resp, err := tier.Completer.Complete(ctx, completion.Request{
		Prompt:      prompt,
		Temperature: f.temperature,
		MaxTokens:   f.maxTokens,
	})
	if err != nil {
		f.log.Warn().Err(err).Str("tier", in.Tier).Msg("finalizer call failed, using fallback reply")
		return Reply{
			Text:     fallbackReply(in),
			Tier:     in.Tier,
			Fallback: true,
			Elapsed:  time.Since(start),
		}
	}

	text := resp.Text
	if text == "" {
		text = fallbackReply(in)
	}
	return Reply{
		Text:             text,
		Tier:             in.Tier,
		Model:            resp.Model,
		Fallback:         resp.Text == "",
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Elapsed:          time.Since(start),
	}
}

func (f *Finalizer) pick(tier string) Tier {
	if tier == gate.TierQuality {
		return f.quality
	}
	return f.fast
}
