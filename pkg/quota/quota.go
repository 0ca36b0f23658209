package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Window scopes. Day and month roll over independently.
const (
	ScopeDay   = "day"
	ScopeMonth = "month"
)

// Limit kinds, recorded on the exceeded error.
const (
	KindCalls  = "calls"
	KindTokens = "tokens"
	KindSpend  = "spend"
)

// Limits caps one window. A zero field means that dimension is unlimited.
type Limits struct {
	Calls    int64
	Tokens   int64
	SpendUSD float64
}

// Pricing is per-1k-token pricing used for spend accounting.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Estimate prices a call in USD.
func (p Pricing) Estimate(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000.0*p.PromptPer1K +
		float64(completionTokens)/1000.0*p.CompletionPer1K
}

// ExceededError reports an exhausted budget window. Callers convert it into
// a fast-tier decision; it never reaches the end user.
type ExceededError struct {
	Scope     string
	Kind      string
	Used      float64
	Limit     float64
	Remaining float64
	ResetAt   time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s %s budget exhausted: %.6g of %.6g used, %.6g remaining, resets %s",
		e.Scope, e.Kind, e.Used, e.Limit, e.Remaining, e.ResetAt.UTC().Format(time.RFC3339))
}

// Usage is a point-in-time view of one window's counters.
type Usage struct {
	Scope    string    `json:"scope"`
	Calls    int64     `json:"calls"`
	Tokens   int64     `json:"tokens"`
	SpendUSD float64   `json:"spend_usd"`
	ResetAt  time.Time `json:"reset_at"`
}

type window struct {
	scope   string
	limits  Limits
	resetAt time.Time
	calls   int64
	tokens  int64
	spend   float64
}

// rollover zeroes the window once its boundary has passed. Applied lazily on
// every access, so an idle process needs no timers.
func (w *window) rollover(now time.Time, next func(time.Time) time.Time) {
	if now.Before(w.resetAt) {
		return
	}
	w.calls = 0
	w.tokens = 0
	w.spend = 0
	w.resetAt = next(now)
}

func (w *window) check(estTokens int64, estSpend float64) *ExceededError {
	if w.limits.Calls > 0 && w.calls+1 > w.limits.Calls {
		return w.exceeded(KindCalls, float64(w.calls), float64(w.limits.Calls))
	}
	if w.limits.Tokens > 0 && w.tokens+estTokens > w.limits.Tokens {
		return w.exceeded(KindTokens, float64(w.tokens), float64(w.limits.Tokens))
	}
	if w.limits.SpendUSD > 0 && w.spend+estSpend > w.limits.SpendUSD {
		return w.exceeded(KindSpend, w.spend, w.limits.SpendUSD)
	}
	return nil
}

func (w *window) exceeded(kind string, used, limit float64) *ExceededError {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &ExceededError{
		Scope:     w.scope,
		Kind:      kind,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}
}

func (w *window) usage() Usage {
	return Usage{
		Scope:    w.scope,
		Calls:    w.calls,
		Tokens:   w.tokens,
		SpendUSD: w.spend,
		ResetAt:  w.resetAt,
	}
}

// RateBudget tracks remote-model consumption in a daily and a monthly
// window with independent reset boundaries. It outlives individual turns
// and is safe for concurrent use.
type RateBudget struct {
	mu      sync.Mutex
	day     window
	month   window
	pricing Pricing
	store   Store
	log     zerolog.Logger
	nowFn   func() time.Time
}

// Option configures a RateBudget.
type Option func(*RateBudget)

// WithPricing sets the per-1k-token pricing used for spend accounting.
func WithPricing(p Pricing) Option {
	return func(b *RateBudget) { b.pricing = p }
}

// WithStore sets where counters are persisted across restarts.
func WithStore(s Store) Option {
	return func(b *RateBudget) { b.store = s }
}

// WithLogger sets the budget's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *RateBudget) { b.log = log }
}

// New creates a budget with the given per-window limits. Counters start
// empty; call Restore to pick up persisted state.
func New(day, month Limits, opts ...Option) *RateBudget {
	b := &RateBudget{
		day:   window{scope: ScopeDay, limits: day},
		month: window{scope: ScopeMonth, limits: month},
		store: NewMemoryStore(),
		log:   zerolog.Nop(),
		nowFn: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	now := b.nowFn()
	b.day.resetAt = nextDayReset(now)
	b.month.resetAt = nextMonthReset(now)
	return b
}

// Reserve checks every window against an upcoming call of the estimated
// size. It consumes nothing; Commit records actuals once the call finishes.
// The returned error is always a *ExceededError.
func (b *RateBudget) Reserve(estTokens int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFn()
	b.day.rollover(now, nextDayReset)
	b.month.rollover(now, nextMonthReset)

	estSpend := b.pricing.Estimate(estTokens, 0)
	if err := b.day.check(int64(estTokens), estSpend); err != nil {
		return err
	}
	if err := b.month.check(int64(estTokens), estSpend); err != nil {
		return err
	}
	return nil
}

// Commit records a finished remote call against both windows. It runs even
// when the turn is unwinding, so a call that started is never lost.
func (b *RateBudget) Commit(calls, promptTokens, completionTokens int) {
	b.mu.Lock()

	now := b.nowFn()
	b.day.rollover(now, nextDayReset)
	b.month.rollover(now, nextMonthReset)

	spend := b.pricing.Estimate(promptTokens, completionTokens)
	tokens := int64(promptTokens + completionTokens)
	for _, w := range []*window{&b.day, &b.month} {
		w.calls += int64(calls)
		w.tokens += tokens
		w.spend += spend
	}
	snap := Snapshot{Day: b.day.usage(), Month: b.month.usage()}
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.Save(context.Background(), snap); err != nil {
			b.log.Warn().Err(err).Msg("quota snapshot save failed")
		}
	}
}

// Restore loads persisted counters. A stale snapshot is harmless: the next
// access rolls expired windows over anyway.
func (b *RateBudget) Restore(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	snap, err := b.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load quota snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.day.restore(snap.Day)
	b.month.restore(snap.Month)
	return nil
}

func (w *window) restore(u Usage) {
	if u.ResetAt.IsZero() {
		return
	}
	w.calls = u.Calls
	w.tokens = u.Tokens
	w.spend = u.SpendUSD
	w.resetAt = u.ResetAt
}

// Snapshot returns the current counters for both windows.
func (b *RateBudget) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFn()
	b.day.rollover(now, nextDayReset)
	b.month.rollover(now, nextMonthReset)
	return Snapshot{Day: b.day.usage(), Month: b.month.usage()}
}

func nextDayReset(now time.Time) time.Time {
	n := now.UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

func nextMonthReset(now time.Time) time.Time {
	n := now.UTC()
	return time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
