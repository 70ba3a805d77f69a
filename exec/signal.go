package exec

import "time"

// SignalType names the kinds of control signal that can propagate across
// the execution graph.
type SignalType string

const (
	SignalAbort    SignalType = "abort"
	SignalInterrupt SignalType = "interrupt"
	SignalShutdown SignalType = "shutdown"
)

// Signal is a control message sent to one execution, and potentially
// propagated on to its descendants per the fork/spawn rules below.
type Signal struct {
	Type      SignalType
	Source    string
	PID       string
	ParentPID string
	Reason    string
	Timestamp time.Time
	Metadata  map[string]any
}

// Propagate delivers sig to the handle at pid and, for abort/interrupt/
// shutdown, recursively to every fork descendant — never to spawn
// descendants, which are independent executions by design (§4.6).
func (g *Graph) Propagate(pid string, sig Signal) {
	h, ok := g.Get(pid)
	if !ok {
		return
	}
	g.deliver(h, sig)
	for _, child := range g.Children(pid) {
		if child.Kind != KindFork {
			continue
		}
		g.Propagate(child.PID, sig)
	}
}

func (g *Graph) deliver(h *Handle, sig Signal) {
	switch sig.Type {
	case SignalAbort, SignalShutdown:
		h.COM.Abort(sig.Reason)
		h.Cancel(sig.Reason)
	case SignalInterrupt:
		h.COM.Abort(sig.Reason)
	}
}

// Kill cancels pid and every fork descendant (not spawns), marking them
// cancelled with reason.
func (g *Graph) Kill(pid string, reason string) {
	g.Propagate(pid, Signal{Type: SignalAbort, PID: pid, Reason: reason, Timestamp: time.Now()})
}
