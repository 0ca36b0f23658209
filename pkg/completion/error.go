package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error wraps provider failures with status metadata.
type Error struct {
	Provider  string
	Status    int
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "completion error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Err.Error())
	}
	return fmt.Sprintf("%s: completion error (status=%d)", e.Provider, e.Status)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error is safe to retry: request timeouts,
// rate limiting, and server-side failures qualify; cancellation does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		if cerr.Temporary {
			return true
		}
		if cerr.Status == 408 || cerr.Status == 429 || (cerr.Status >= 500 && cerr.Status <= 599) {
			return true
		}
	}
	return false
}
