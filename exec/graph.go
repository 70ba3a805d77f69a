package exec

import (
	"sync"
	"time"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/ids"
)

// Graph is the forest of every execution spawned from a single root,
// keyed by PID, with enough bookkeeping to find children, outstanding
// forks, and orphans (§4.6).
type Graph struct {
	mu       sync.Mutex
	handles  map[string]*Handle
	children map[string][]string
}

// NewGraph creates an empty graph and registers root as its first node.
func NewGraph(root *Handle) *Graph {
	g := &Graph{
		handles:  make(map[string]*Handle),
		children: make(map[string][]string),
	}
	g.register(root)
	return g
}

func (g *Graph) register(h *Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handles[h.PID] = h
	if h.ParentPID != "" {
		g.children[h.ParentPID] = append(g.children[h.ParentPID], h.PID)
	}
}

// Get looks up a handle by PID.
func (g *Graph) Get(pid string) (*Handle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.handles[pid]
	return h, ok
}

// Children returns the direct children (forks and spawns) of pid.
func (g *Graph) Children(pid string) []*Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	childIDs := g.children[pid]
	out := make([]*Handle, 0, len(childIDs))
	for _, id := range childIDs {
		if h, ok := g.handles[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// OutstandingForks returns the still-running fork children of pid. The
// tick orchestrator's Awaiting-Forks phase waits on this set (§4.5).
func (g *Graph) OutstandingForks(pid string) []*Handle {
	var out []*Handle
	for _, h := range g.Children(pid) {
		if h.Kind == KindFork && h.Status() == StatusRunning {
			out = append(out, h)
		}
	}
	return out
}

// Orphans returns still-running handles whose parent PID is no longer
// present in the graph, and still-running forks whose parent is present
// but in a terminal status.
func (g *Graph) Orphans() []*Handle {
	g.mu.Lock()
	all := make([]*Handle, 0, len(g.handles))
	for _, h := range g.handles {
		all = append(all, h)
	}
	g.mu.Unlock()

	var out []*Handle
	for _, h := range all {
		if h.ParentPID == "" {
			continue
		}
		parent, ok := g.Get(h.ParentPID)
		if !ok && h.Status() == StatusRunning {
			out = append(out, h)
			continue
		}
		if ok && isTerminal(parent.Status()) && h.Status() == StatusRunning && h.Kind == KindFork {
			out = append(out, h)
		}
	}
	return out
}

// Tree returns every descendant of pid (not including pid itself),
// depth-first.
func (g *Graph) Tree(pid string) []*Handle {
	var out []*Handle
	var walk func(string)
	walk = func(p string) {
		for _, h := range g.Children(p) {
			out = append(out, h)
			walk(h.PID)
		}
	}
	walk(pid)
	return out
}

// Fork creates a child execution that inherits abort-signal propagation
// from parent and, per opts, copies the parent COM's timeline, sections and
// tools into childCOM and reuses the parent's trace ID. The Context option
// is not applied. Forks are the unit the Awaiting-Forks tick phase waits on.
func (g *Graph) Fork(parent *Handle, opts InheritOptions, childCOM *com.COM) *Handle {
	h := &Handle{
		PID:       ids.NewPID(),
		ParentPID: parent.PID,
		RootPID:   parent.RootPID,
		Kind:      KindFork,
		COM:       childCOM,
	}
	if opts.TraceID {
		h.TraceID = parent.TraceID
	} else {
		h.TraceID = ids.NewTraceID()
	}
	if parent.COM != nil && childCOM != nil {
		if opts.Timeline {
			for _, e := range parent.COM.Timeline() {
				childCOM.AddTimelineEntry(e)
			}
		}
		if opts.Sections {
			for _, s := range parent.COM.Sections() {
				childCOM.AddSection(s)
			}
		}
		if opts.Tools {
			for _, t := range parent.COM.Tools() {
				childCOM.AddTool(t)
			}
		}
	}
	h.status = StatusRunning
	h.startedAt = time.Now()
	g.register(h)
	return h
}

// Spawn creates an independent child execution. Spawns do not receive
// abort/interrupt/shutdown signals propagated from their parent (§4.6) and
// do not inherit timeline/sections/tools regardless of opts.
func (g *Graph) Spawn(parent *Handle, childCOM *com.COM) *Handle {
	h := &Handle{
		PID:       ids.NewPID(),
		ParentPID: parent.PID,
		RootPID:   parent.RootPID,
		Kind:      KindSpawn,
		TraceID:   ids.NewTraceID(),
		COM:       childCOM,
	}
	h.status = StatusRunning
	h.startedAt = time.Now()
	g.register(h)
	return h
}
