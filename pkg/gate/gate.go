package gate

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/zen-systems/turnpike/pkg/quota"
)

// Finalizer modes.
const (
	ModeAlways = "always"
	ModeNever  = "never"
	ModeAuto   = "auto"
)

// Tiers a turn can finalize on.
const (
	TierFast    = "fast"
	TierQuality = "quality"
)

// Decision reasons.
const (
	ReasonModeNever         = "mode_never"
	ReasonModeAlways        = "mode_always"
	ReasonRemoteUnavailable = "remote_unavailable"
	ReasonRateLimited       = "rate_limited"
	ReasonLowComplexity     = "low_complexity"
	ReasonHighScore         = "high_score"
)

// Request is one turn's escalation question.
type Request struct {
	Utterance string
	SlotCount int
	EstTokens int
}

// Decision is the gate's verdict.
type Decision struct {
	Tier   string `json:"tier"`
	Reason string `json:"reason"`
	Score  Score  `json:"score"`
}

// Stats are cumulative decision counts.
type Stats struct {
	Fast    int64 `json:"fast"`
	Quality int64 `json:"quality"`
	Total   int64 `json:"total"`
}

// Gate decides fast-tier vs. quality-tier finalization for each turn,
// consulting the circuit breaker for remote availability and the rate
// limiter plus quota budget for permission to spend.
type Gate struct {
	mode          string
	weights       Weights
	autoThreshold float64
	breaker       *Breaker
	limiter       *RateLimiter
	budget        *quota.RateBudget
	log           zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Gate.
type Option func(*Gate)

// WithMode sets the finalizer mode: always, never, or auto.
func WithMode(mode string) Option {
	return func(g *Gate) { g.mode = mode }
}

// WithWeights sets the scoring weights.
func WithWeights(w Weights) Option {
	return func(g *Gate) { g.weights = w }
}

// WithAutoThreshold sets the total score above which auto mode escalates.
func WithAutoThreshold(t float64) Option {
	return func(g *Gate) { g.autoThreshold = t }
}

// WithBreaker injects the shared circuit breaker.
func WithBreaker(b *Breaker) Option {
	return func(g *Gate) { g.breaker = b }
}

// WithLimiter injects the shared rate limiter.
func WithLimiter(l *RateLimiter) Option {
	return func(g *Gate) { g.limiter = l }
}

// WithBudget injects the shared quota budget. Without one, quota never
// blocks escalation.
func WithBudget(b *quota.RateBudget) Option {
	return func(g *Gate) { g.budget = b }
}

// WithLogger sets the gate's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Gate) { g.log = log }
}

// New creates a gate. Defaults: auto mode, standard weights, a fresh
// breaker, and a limiter at the default rate.
func New(opts ...Option) *Gate {
	g := &Gate{
		mode:          ModeAuto,
		weights:       DefaultWeights(),
		autoThreshold: DefaultAutoThreshold,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = NewBreaker()
	}
	if g.limiter == nil {
		g.limiter = NewRateLimiter(DefaultRateLimit, DefaultRateWindow)
	}
	return g
}

// Breaker exposes the shared breaker so callers can record remote-call
// outcomes against it.
func (g *Gate) Breaker() *Breaker {
	return g.breaker
}

// Decide scores the request and picks the finalization tier. Checks run in
// a fixed order: mode, breaker availability, score, quota, limiter. Quota
// exhaustion and limiter denial both surface as "rate_limited"; the typed
// quota error only reaches the log.
func (g *Gate) Decide(req Request) Decision {
	score := Evaluate(req.Utterance, req.SlotCount, g.weights)
	d := g.decide(req, score)
	g.record(d)

	g.log.Debug().
		Str("tier", d.Tier).
		Str("reason", d.Reason).
		Float64("score", d.Score.Total).
		Msg("gate decision")
	return d
}

func (g *Gate) decide(req Request, score Score) Decision {
	if g.mode == ModeNever {
		return Decision{Tier: TierFast, Reason: ReasonModeNever, Score: score}
	}

	if !g.breaker.Allow() {
		return Decision{Tier: TierFast, Reason: ReasonRemoteUnavailable, Score: score}
	}

	if g.mode != ModeAlways && score.Total <= g.autoThreshold {
		g.breaker.Release()
		return Decision{Tier: TierFast, Reason: ReasonLowComplexity, Score: score}
	}

	if g.budget != nil {
		if err := g.budget.Reserve(req.EstTokens); err != nil {
			g.breaker.Release()
			g.log.Info().Err(err).Msg("quota denied quality tier")
			return Decision{Tier: TierFast, Reason: ReasonRateLimited, Score: score}
		}
	}

	if !g.limiter.Allow() {
		g.breaker.Release()
		return Decision{Tier: TierFast, Reason: ReasonRateLimited, Score: score}
	}

	reason := ReasonHighScore
	if g.mode == ModeAlways {
		reason = ReasonModeAlways
	}
	return Decision{Tier: TierQuality, Reason: reason, Score: score}
}

func (g *Gate) record(d Decision) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.Total++
	if d.Tier == TierQuality {
		g.stats.Quality++
	} else {
		g.stats.Fast++
	}
}

// Stats returns a copy of the cumulative decision counts.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}
