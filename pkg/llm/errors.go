package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled marks a call aborted by the caller's cancellation signal,
// as opposed to a provider-side failure.
var ErrCancelled = errors.New("llm: call cancelled")

// CancelledError wraps a context error so callers can distinguish user
// cancellation from provider errors with errors.Is(err, ErrCancelled).
func CancelledError(cause error) error {
	return fmt.Errorf("%w: %v", ErrCancelled, cause)
}

// IsCancelled reports whether err represents cooperative cancellation,
// either ours or a raw context error that slipped through.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
