package hooks

import "github.com/fiberloom/engine/fiber"

// Phase names when a phase-tagged effect hook runs, relative to the tick
// orchestrator's state machine (§4.5).
type Phase string

const (
	// PhaseTickStart runs once at the beginning of every tick, before the
	// first render pass.
	PhaseTickStart Phase = "tick-start"
	// PhaseAfterCompile runs after each render+commit pass inside the
	// compile-stabilization loop, including the final stabilizing pass.
	PhaseAfterCompile Phase = "after-compile"
	// PhaseTickEnd runs once at the end of every tick, after ingestion.
	PhaseTickEnd Phase = "tick-end"
	// PhaseCommit runs synchronously during the commit step of whichever
	// render pass touched this fiber, before the next render pass begins.
	PhaseCommit Phase = "commit"
	// PhaseMount runs once when the fiber is first committed.
	PhaseMount Phase = "mount"
	// PhaseUnmount runs once when the fiber is removed.
	PhaseUnmount Phase = "unmount"
	// PhaseOnMessage runs whenever a new timeline message is ingested.
	PhaseOnMessage Phase = "on-message"
)

// EffectRegistry collects phase-tagged effects registered during a render
// pass so the tick orchestrator can invoke them at the right point in its
// state machine. Effects are registered fresh every render (their hook
// cells persist the cleanup function and deps across renders), so the
// orchestrator clears and repopulates this registry once per render pass.
type EffectRegistry struct {
	byPhase map[Phase][]registeredEffect
}

type registeredEffect struct {
	fiber *fiber.FiberNode
	cell  *fiber.HookCell
	fn    func() func()
	deps  []any
}

// NewEffectRegistry creates an empty registry.
func NewEffectRegistry() *EffectRegistry {
	return &EffectRegistry{byPhase: make(map[Phase][]registeredEffect)}
}

// Reset clears all pending registrations; called once per render pass
// before components render.
func (r *EffectRegistry) Reset() {
	for k := range r.byPhase {
		delete(r.byPhase, k)
	}
}

// Run invokes every effect registered for phase whose deps changed since
// its last run (or that has never run), running its previous cleanup
// first if present.
func (r *EffectRegistry) Run(phase Phase) {
	for _, e := range r.byPhase[phase] {
		if !depsChanged(e.cell, e.deps) {
			continue
		}
		if e.cell.Cleanup != nil {
			e.cell.Cleanup()
			e.cell.Cleanup = nil
		}
		e.cell.Cleanup = e.fn()
		e.cell.Deps = e.deps
	}
}

// UseEffect registers fn to run at the given phase whenever deps changes
// (or every time, if deps is nil). fn may return a cleanup function,
// invoked before the next run and on unmount.
func UseEffect(rc *fiber.RenderContext, registry *EffectRegistry, phase Phase, fn func() func(), deps []any) {
	cell := cellFor(rc, "effect")
	registry.byPhase[phase] = append(registry.byPhase[phase], registeredEffect{
		fiber: rc.Fiber(),
		cell:  cell,
		fn:    fn,
		deps:  deps,
	})
}
