// Package exec implements the execution graph: a forest of execution
// handles (root, fork, and spawn executions) with PID allocation, status
// tracking, and signal propagation rules (§4.6). A fork inherits its
// parent's abort signal and (optionally) its timeline/sections/tools; a
// spawn is independent and never receives signals propagated from its
// parent.
package exec

import (
	"context"
	"sync"
	"time"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/ids"
)

// Kind distinguishes how an execution relates to its parent.
type Kind string

const (
	KindRoot  Kind = "root"
	KindFork  Kind = "fork"
	KindSpawn Kind = "spawn"
)

// Status is an execution's lifecycle state. Transitions are monotonic
// (running -> completed|failed|cancelled) except that a running execution
// may always move to cancelled regardless of what else is happening.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// InheritOptions controls what a fork carries over from its parent at
// creation time.
type InheritOptions struct {
	Timeline bool
	Sections bool
	Tools    bool
	TraceID  bool
	Context  bool
}

// Handle is one node in the execution graph.
type Handle struct {
	PID      string
	ParentPID string
	RootPID  string
	Kind     Kind

	TraceID string
	COM     *com.COM

	mu          sync.Mutex
	status      Status
	startedAt   time.Time
	completedAt time.Time

	cancel context.CancelFunc

	listeners []func(Event)
}

// Event is a lifecycle notification emitted by a Handle as its status
// changes.
type Event struct {
	PID    string
	Status Status
	Reason string
}

// NewRoot creates the root execution handle for a fresh top-level run.
func NewRoot(c *com.COM) *Handle {
	pid := ids.NewPID()
	return &Handle{
		PID:     pid,
		RootPID: pid,
		Kind:    KindRoot,
		TraceID: ids.NewTraceID(),
		COM:     c,
		status:  StatusRunning,
		startedAt: time.Now(),
	}
}

// Status returns the current lifecycle status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// SetStatus transitions status, emitting a lifecycle event. A transition
// away from a terminal status (completed/failed/cancelled) is ignored, so
// cancelled is reachable from running only.
func (h *Handle) SetStatus(s Status, reason string) {
	h.mu.Lock()
	if isTerminal(h.status) {
		h.mu.Unlock()
		return
	}
	h.status = s
	if isTerminal(s) {
		h.completedAt = time.Now()
	}
	listeners := append([]func(Event){}, h.listeners...)
	h.mu.Unlock()

	ev := Event{PID: h.PID, Status: s, Reason: reason}
	for _, l := range listeners {
		l(ev)
	}
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// OnStatusChange registers a listener for lifecycle events on this handle.
func (h *Handle) OnStatusChange(fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// SetCancelFunc attaches the context.CancelFunc that aborts this
// execution's work when Cancel is called.
func (h *Handle) SetCancelFunc(cancel context.CancelFunc) {
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
}

// Cancel invokes the attached cancel function, if any, and marks the
// handle cancelled.
func (h *Handle) Cancel(reason string) {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.SetStatus(StatusCancelled, reason)
}
