package hooks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/fiber"
	"github.com/fiberloom/engine/hooks"
	"github.com/fiberloom/engine/telemetry"
)

func newCOM() *com.COM {
	return com.New(telemetry.Noop())
}

func render(t *testing.T, rec *fiber.Reconciler, n int, fn fiber.ComponentFunc) []*fiber.FiberNode {
	t.Helper()
	return rec.Render(com.NewTickState(n, nil, nil), fiber.Com(fn, "", nil))
}

func TestUseState_PersistsValueAcrossRendersUntilSet(t *testing.T) {
	var seen []int
	component := func(rc *fiber.RenderContext, props any) fiber.Element {
		v, set := hooks.UseState(rc, 0)
		seen = append(seen, v)
		if v == 0 {
			set(7)
		}
		return fiber.Element{}
	}

	rec := fiber.NewReconciler(newCOM())
	render(t, rec, 1, component)
	render(t, rec, 2, component)

	require.Len(t, seen, 2)
	assert.Equal(t, 0, seen[0])
	assert.Equal(t, 7, seen[1], "state set on the prior render must be visible on the next")
}

func TestUseMemo_RecomputesOnlyWhenDepsChange(t *testing.T) {
	calls := 0
	dep := 1
	component := func(rc *fiber.RenderContext, props any) fiber.Element {
		hooks.UseMemo(rc, func() int {
			calls++
			return dep
		}, []any{dep})
		return fiber.Element{}
	}

	rec := fiber.NewReconciler(newCOM())
	render(t, rec, 1, component)
	render(t, rec, 2, component) // same dep, must not recompute
	assert.Equal(t, 1, calls)

	dep = 2
	render(t, rec, 3, component) // dep changed, must recompute
	assert.Equal(t, 2, calls)
}

func TestHookOrderViolation_PanicsWhenHookKindChangesAtSameIndex(t *testing.T) {
	callState := true
	component := func(rc *fiber.RenderContext, props any) fiber.Element {
		if callState {
			hooks.UseState(rc, 0)
		} else {
			hooks.UseRef(rc, 0)
		}
		return fiber.Element{}
	}

	rec := fiber.NewReconciler(newCOM())
	render(t, rec, 1, component)

	callState = false
	assert.Panics(t, func() {
		render(t, rec, 2, component)
	}, "calling a different hook at the same positional index must panic, per the hook-order invariant")
}

func TestHookChainLength_GrowsButNeverShrinksWithinAFiber(t *testing.T) {
	extra := false
	component := func(rc *fiber.RenderContext, props any) fiber.Element {
		hooks.UseState(rc, 0)
		if extra {
			hooks.UseState(rc, 1)
		}
		return fiber.Element{}
	}

	rec := fiber.NewReconciler(newCOM())
	render(t, rec, 1, component)
	assert.Len(t, rec.Root().Hooks, 1)

	extra = true
	render(t, rec, 2, component)
	assert.Len(t, rec.Root().Hooks, 2, "a fiber's hook chain only grows; existing cells are never removed")
}

func TestUseEffect_RunsOnDepsChangeAndCleansUpPreviousRun(t *testing.T) {
	var runs, cleanups int
	dep := 1
	component := func(rc *fiber.RenderContext, props any, registry *hooks.EffectRegistry) fiber.Element {
		hooks.UseEffect(rc, registry, hooks.PhaseAfterCompile, func() func() {
			runs++
			d := dep
			return func() {
				cleanups++
				_ = d
			}
		}, []any{dep})
		return fiber.Element{}
	}

	registry := hooks.NewEffectRegistry()
	rec := fiber.NewReconciler(newCOM())

	wrap := func(rc *fiber.RenderContext, props any) fiber.Element {
		return component(rc, props, registry)
	}

	registry.Reset()
	render(t, rec, 1, wrap)
	registry.Run(hooks.PhaseAfterCompile)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 0, cleanups)

	registry.Reset()
	render(t, rec, 2, wrap)
	registry.Run(hooks.PhaseAfterCompile)
	assert.Equal(t, 1, runs, "unchanged deps must not re-run the effect")

	dep = 2
	registry.Reset()
	render(t, rec, 3, wrap)
	registry.Run(hooks.PhaseAfterCompile)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 1, cleanups, "changed deps must clean up the previous run before re-running")
}

func TestUseCOMState_FallsBackToInitialThenWritesThrough(t *testing.T) {
	c := newCOM()
	component := func(rc *fiber.RenderContext, props any) fiber.Element {
		v, set := hooks.UseCOMState(rc, "counter", 3)
		if v == 3 {
			set(4)
		}
		return fiber.Element{}
	}

	rec := fiber.NewReconciler(c)
	render(t, rec, 1, component)
	v, ok := c.State("counter")
	require.True(t, ok)
	assert.Equal(t, 4, v)
}
