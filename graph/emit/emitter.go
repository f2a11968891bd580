// Package emit provides event emission and observability for graph execution.
package emit

import "context"

// Emitter receives observability events from a run. Implementations should
// be non-blocking, safe for concurrent use, and must not panic: the engine
// calls Emit/EmitBatch inline with tick processing and a failing emitter
// must not take down a run.
type Emitter interface {
	// Emit sends a single event. Implementations should buffer or drop on
	// backend failure rather than block the caller.
	Emit(event Event)

	// EmitBatch sends multiple events, in order, in one call. Returns an
	// error only for catastrophic failures; individual event failures
	// should be logged internally and swallowed.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until buffered events are delivered or ctx is done.
	// Safe to call more than once.
	Flush(ctx context.Context) error
}
