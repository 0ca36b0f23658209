package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Runtime executes side-effecting tools. Implementations live outside the
// orchestration core; the pipeline only depends on this boundary.
type Runtime interface {
	Execute(ctx context.Context, tool string, params map[string]string) (any, error)
}

// InvocationResult is the record of one tool execution. Raw is owned by the
// runtime and referenced, never copied.
type InvocationResult struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Raw     any    `json:"-"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
	Retries int    `json:"retries,omitempty"`
}

// Errored reports whether the invocation ended in an error, either via the
// success flag or a populated error field.
func (r InvocationResult) Errored() bool {
	return !r.Success || r.Error != ""
}

// Empty reports whether the invocation succeeded but its payload carries no
// content. An errored result is never empty; the error wins.
func (r InvocationResult) Empty() bool {
	return !r.Errored() && IsEmptyPayload(r.Raw)
}

// IsEmptyPayload reports whether a raw tool payload carries no information:
// nil, a blank string, an empty list, or an empty mapping.
func IsEmptyPayload(raw any) bool {
	if raw == nil {
		return true
	}
	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) == ""
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return true
		}
		return IsEmptyPayload(v.Elem().Interface())
	}
	return false
}

// Summarize renders a tool payload as a short human-readable line. Lists and
// maps report their size, strings are clipped, everything else round-trips
// through JSON.
func Summarize(raw any) string {
	if raw == nil {
		return "no result"
	}

	switch v := raw.(type) {
	case string:
		return clip(v, 120)
	case error:
		return clip(v.Error(), 120)
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("%d items", rv.Len())
	case reflect.Map:
		return fmt.Sprintf("%d fields", rv.Len())
	}

	if b, err := json.Marshal(raw); err == nil {
		return clip(string(b), 120)
	}
	return clip(fmt.Sprintf("%v", raw), 120)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
