package statestore

import (
	"context"
	"time"
)

// Observability receives hooks around the commit protocol. Implementations
// must be safe for concurrent use. The otel subpackage provides an
// OpenTelemetry implementation.
type Observability interface {
	// OnSetStart is called when a set operation begins. The returned
	// context is threaded through middleware and persistence, so
	// implementations can attach a span.
	OnSetStart(ctx context.Context) context.Context

	// OnSetEnd is called when the set operation finishes. committed is
	// false for the no-op short circuit and for aborted commits.
	OnSetEnd(ctx context.Context, committed bool, err error)

	// OnNotify is called after a subscriber fan-out completes.
	OnNotify(subscribers int, duration time.Duration)

	// OnBackup is called after a backup operation ("persist", "load",
	// "reset" or "clear") completes.
	OnBackup(ctx context.Context, op string, duration time.Duration, err error)
}
