package gate

import (
	"fmt"
	"sort"
	"time"
)

// Policy bundles the gate knobs selectable by name from config or the CLI.
type Policy struct {
	Name          string
	Mode          string
	Weights       Weights
	AutoThreshold float64
	RateLimit     int
	RateWindow    time.Duration
}

// Options expands the preset into gate options. The limiter is created
// fresh; shared breaker and budget are wired separately.
func (p Policy) Options() []Option {
	return []Option{
		WithMode(p.Mode),
		WithWeights(p.Weights),
		WithAutoThreshold(p.AutoThreshold),
		WithLimiter(NewRateLimiter(p.RateLimit, p.RateWindow)),
	}
}

// PolicyRegistry holds named gate presets.
type PolicyRegistry struct {
	policies map[string]Policy
}

// NewPolicyRegistry creates a registry preloaded with the built-in presets.
func NewPolicyRegistry() *PolicyRegistry {
	r := &PolicyRegistry{policies: make(map[string]Policy)}

	r.Register(Policy{
		Name:          "default",
		Mode:          ModeAuto,
		Weights:       DefaultWeights(),
		AutoThreshold: DefaultAutoThreshold,
		RateLimit:     DefaultRateLimit,
		RateWindow:    DefaultRateWindow,
	})
	r.Register(Policy{
		Name:          "economy",
		Mode:          ModeNever,
		Weights:       DefaultWeights(),
		AutoThreshold: DefaultAutoThreshold,
		RateLimit:     DefaultRateLimit,
		RateWindow:    DefaultRateWindow,
	})
	r.Register(Policy{
		Name:          "quality-first",
		Mode:          ModeAlways,
		Weights:       DefaultWeights(),
		AutoThreshold: DefaultAutoThreshold,
		RateLimit:     12,
		RateWindow:    DefaultRateWindow,
	})

	return r
}

// Register adds or replaces a preset.
func (r *PolicyRegistry) Register(p Policy) {
	r.policies[p.Name] = p
}

// Get looks up a preset by name.
func (r *PolicyRegistry) Get(name string) (Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("gate policy not found: %s", name)
	}
	return p, nil
}

// Names lists the registered presets in sorted order.
func (r *PolicyRegistry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
