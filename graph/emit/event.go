package emit

// Event is an observability event emitted while a run executes: scheduler
// transitions and dispatch outcomes.
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Tick is the scheduler tick number the event belongs to (0 for
	// run-level events that happen outside a tick: run start, run finish).
	Tick int

	// NodeID identifies which graph node the event concerns. Empty for
	// run-level events.
	NodeID string

	// Msg is a short event name: the execution loop emits "node_status"
	// for a scheduler transition and "node_dispatched" for a dispatch
	// outcome.
	Msg string

	// Meta carries event-specific structured data. Scheduler transitions
	// carry "from"/"to"/"reason"; dispatch outcomes carry "progress",
	// "latency_ms", and, when the agent reports token usage, "model",
	// "tokens_in", "tokens_out", "cost_usd".
	Meta map[string]interface{}
}
