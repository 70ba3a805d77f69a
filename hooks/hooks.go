// Package hooks implements the component hook primitives (state, effects,
// memoization, refs) that component functions call through a
// fiber.RenderContext while rendering. Each hook's persistent storage lives
// on the calling fiber's HookCell slice, positionally keyed by call order,
// so hook order and count must be identical across renders of the same
// fiber (§9).
package hooks

import (
	"fmt"
	"reflect"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/fiber"
)

func cellFor(rc *fiber.RenderContext, kind string) *fiber.HookCell {
	idx := rc.NextCursor()
	cell := rc.Fiber().Cell(idx, kind)
	if cell.Kind != kind {
		panic(fmt.Sprintf("hooks: hook order violation at index %d: expected %q, got %q", idx, cell.Kind, kind))
	}
	return cell
}

// depsChanged reports whether deps differs from the hook cell's last-seen
// deps, using shallow equality per element. A nil deps list always
// re-runs, matching "no deps array" semantics.
func depsChanged(cell *fiber.HookCell, deps []any) bool {
	if deps == nil {
		return true
	}
	if cell.Deps == nil {
		return true
	}
	if len(cell.Deps) != len(deps) {
		return true
	}
	for i := range deps {
		if !reflect.DeepEqual(cell.Deps[i], deps[i]) {
			return true
		}
	}
	return false
}

// UseState returns the current value of a fiber-local state cell and a
// setter. Unlike UseCOMState, this state is private to the fiber and is not
// visible on COM; it does not survive the fiber's unmount.
func UseState[T any](rc *fiber.RenderContext, initial T) (T, func(T)) {
	cell := cellFor(rc, "state")
	if cell.State == nil {
		cell.State = initial
	}
	cell.Pending = false
	setter := func(v T) {
		cell.State = v
		cell.Pending = true
	}
	return cell.State.(T), setter
}

// UseCOMState binds a fiber to a COM state key: reads the key's current
// value (falling back to initial the first time the key is observed) and
// returns a setter that writes through to COM.SetState, emitting the usual
// state:changed event.
func UseCOMState[T any](rc *fiber.RenderContext, key string, initial T) (T, func(T)) {
	c := rc.COM()
	v, ok := c.State(key)
	if !ok {
		c.SetState(key, initial)
		v = initial
	}
	setter := func(nv T) { c.SetState(key, nv) }
	return v.(T), setter
}

// UseWatch subscribes to COM state:changed events for key and invokes fn
// with the new value whenever it changes, for as long as the fiber is
// mounted. The subscription is established once (on first render of this
// hook) and torn down automatically on unmount.
func UseWatch(rc *fiber.RenderContext, key string, fn func(newValue, prevValue any)) {
	cell := cellFor(rc, "watch")
	if cell.Cleanup != nil {
		return
	}
	unsubscribe := rc.COM().On(func(ev com.Event) {
		if ev.Type != com.EventStateChanged || ev.Key != key {
			return
		}
		fn(ev.Value, ev.Previous)
	})
	cell.Cleanup = unsubscribe
}

// Ref is a mutable box returned by UseRef, stable across renders.
type Ref[T any] struct {
	Current T
}

// UseRef returns a stable mutable container seeded with initial on first
// render and left untouched on subsequent renders.
func UseRef[T any](rc *fiber.RenderContext, initial T) *Ref[T] {
	cell := cellFor(rc, "ref")
	if cell.State == nil {
		cell.State = &Ref[T]{Current: initial}
	}
	return cell.State.(*Ref[T])
}

// UseMemo recomputes and caches compute's result only when deps change
// from the previous render.
func UseMemo[T any](rc *fiber.RenderContext, compute func() T, deps []any) T {
	cell := cellFor(rc, "memo")
	if cell.State == nil || depsChanged(cell, deps) {
		cell.State = compute()
		cell.Deps = deps
	}
	return cell.State.(T)
}

// UseCallback returns a stable function identity across renders as long as
// deps is unchanged, useful for passing callbacks into effect deps without
// forcing a re-run every render.
func UseCallback[T any](rc *fiber.RenderContext, fn T, deps []any) T {
	return UseMemo(rc, func() T { return fn }, deps)
}

// UseInput returns the tick's seed input blocks once per execution; later
// ticks see an empty slice unless new input was queued.
func UseInput(rc *fiber.RenderContext) []any {
	blocks := rc.Tick().Current
	out := make([]any, len(blocks))
	for i, b := range blocks {
		out[i] = b
	}
	return out
}

// UseInit runs fn exactly once for the lifetime of the fiber (first render
// only), useful for one-time setup that must not repeat on subsequent
// renders or recompile passes.
func UseInit(rc *fiber.RenderContext, fn func()) {
	cell := cellFor(rc, "init")
	if cell.State != nil {
		return
	}
	cell.State = true
	fn()
}
