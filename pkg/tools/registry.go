package tools

import (
	"context"
	"fmt"
	"sort"
)

// Spec describes a tool the router is allowed to plan.
type Spec struct {
	Name        string
	Description string
}

// Registry holds the plannable tool set. The router's model output is only a
// suggestion; every planned name is validated here before execution.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry creates a registry from the given specs.
func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a tool spec.
func (r *Registry) Register(s Spec) {
	if s.Name == "" {
		return
	}
	r.specs[s.Name] = s
}

// Known reports whether a tool name is registered.
func (r *Registry) Known(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for n := range r.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidatePlan filters a planned tool list down to registered names,
// preserving order and deduplicating. Dropped names are returned so the
// caller can log what the model invented.
func (r *Registry) ValidatePlan(plan []string) (valid, dropped []string) {
	seen := make(map[string]struct{}, len(plan))
	for _, name := range plan {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if r.Known(name) {
			valid = append(valid, name)
		} else {
			dropped = append(dropped, name)
		}
	}
	return valid, dropped
}

// AllowEmpty is the static set of tool names for which an empty result is a
// valid answer (a calendar with no events is an answer, not a failure).
type AllowEmpty map[string]struct{}

// NewAllowEmpty builds the allow-list from tool names.
func NewAllowEmpty(names ...string) AllowEmpty {
	a := make(AllowEmpty, len(names))
	for _, n := range names {
		if n != "" {
			a[n] = struct{}{}
		}
	}
	return a
}

// Contains reports whether the tool may legitimately return nothing.
func (a AllowEmpty) Contains(name string) bool {
	_, ok := a[name]
	return ok
}

// Handler executes one tool call.
type Handler func(ctx context.Context, params map[string]string) (any, error)

// FuncRuntime dispatches tool calls to registered handler functions. It backs
// the CLI's built-in demo tools and most tests.
type FuncRuntime struct {
	handlers map[string]Handler
}

// NewFuncRuntime creates an empty function-backed runtime.
func NewFuncRuntime() *FuncRuntime {
	return &FuncRuntime{handlers: make(map[string]Handler)}
}

// Handle registers a handler for a tool name and returns the runtime for
// chaining.
func (r *FuncRuntime) Handle(name string, h Handler) *FuncRuntime {
	r.handlers[name] = h
	return r
}

// Execute runs the handler registered for the tool.
func (r *FuncRuntime) Execute(ctx context.Context, tool string, params map[string]string) (any, error) {
	h, ok := r.handlers[tool]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", tool)
	}
	return h(ctx, params)
}
