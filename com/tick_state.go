package com

import "github.com/fiberloom/engine/model"

// TickState is the per-tick bookkeeping the tick orchestrator threads
// through a single render+compile+model+tools+ingest cycle (§4.5). It is
// distinct from COM: COM is the semantic context a component tree reads and
// writes, while TickState tracks the orchestrator's own progress through
// the current tick.
type TickState struct {
	Number   int
	Previous *TickState

	// Current is the input seed for this tick: the user's new message on
	// tick 1, or the next queued message / empty on subsequent ticks (§4.5
	// step 1, §5).
	Current []model.Block

	StopReason string
	Err        error
	Usage      *model.TokenUsage

	// QueuedMessages is a snapshot of COM.queuedMessages taken at the start
	// of the tick, before any new messages queued during this tick's render
	// are visible.
	QueuedMessages []model.Message

	onStop []func(reason string)
}

// NewTickState starts tick state for tick number n following prev.
func NewTickState(n int, prev *TickState, input []model.Block) *TickState {
	return &TickState{Number: n, Previous: prev, Current: input}
}

// OnStop registers a callback invoked when Stop is called on this tick.
func (t *TickState) OnStop(fn func(reason string)) {
	t.onStop = append(t.onStop, fn)
}

// Stop records the termination reason for this tick and notifies
// registered callbacks.
func (t *TickState) Stop(reason string) {
	t.StopReason = reason
	for _, fn := range t.onStop {
		fn(reason)
	}
}
