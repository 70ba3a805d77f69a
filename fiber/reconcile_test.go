package fiber_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/fiber"
	"github.com/fiberloom/engine/telemetry"
)

func newCOM() *com.COM {
	return com.New(telemetry.Noop())
}

func leaf(rc *fiber.RenderContext, props any) fiber.Element {
	return fiber.Element{}
}

func TestRender_FirstPassPlacesRoot(t *testing.T) {
	rec := fiber.NewReconciler(newCOM())
	tick := com.NewTickState(1, nil, nil)

	dirty := rec.Render(tick, fiber.Com(leaf, "", nil))
	require.Len(t, dirty, 1)
	assert.True(t, dirty[0].Flags.Has(fiber.Placement))
	assert.False(t, rec.Root().Mounted())
}

func TestRender_SecondPassReusesSameFiberAsUpdate(t *testing.T) {
	rec := fiber.NewReconciler(newCOM())
	tick1 := com.NewTickState(1, nil, nil)
	rec.Render(tick1, fiber.Com(leaf, "", nil))
	first := rec.Root()

	tick2 := com.NewTickState(2, nil, nil)
	dirty := rec.Render(tick2, fiber.Com(leaf, "", nil))
	require.Len(t, dirty, 1)
	assert.Same(t, first, rec.Root(), "reconciling the same component identity must reuse the fiber")
	assert.True(t, dirty[0].Flags.Has(fiber.Update))
}

func TestRender_KeyedChildrenPreserveIdentityAcrossReorder(t *testing.T) {
	rec := fiber.NewReconciler(newCOM())
	tick1 := com.NewTickState(1, nil, nil)
	root := fiber.Fragment("", fiber.Com(leaf, "a", nil), fiber.Com(leaf, "b", nil))
	rec.Render(tick1, root)

	var a1, b1 *fiber.FiberNode
	for c := rec.Root().Child; c != nil; c = c.Sibling {
		if c.Key == "a" {
			a1 = c
		}
		if c.Key == "b" {
			b1 = c
		}
	}
	require.NotNil(t, a1)
	require.NotNil(t, b1)

	tick2 := com.NewTickState(2, nil, nil)
	reordered := fiber.Fragment("", fiber.Com(leaf, "b", nil), fiber.Com(leaf, "a", nil))
	rec.Render(tick2, reordered)

	var a2, b2 *fiber.FiberNode
	for c := rec.Root().Child; c != nil; c = c.Sibling {
		if c.Key == "a" {
			a2 = c
		}
		if c.Key == "b" {
			b2 = c
		}
	}
	assert.Same(t, a1, a2, "keyed element must keep its identity across a reorder")
	assert.Same(t, b1, b2, "keyed element must keep its identity across a reorder")
}

func TestRender_RemovedElementIsFlaggedForDeletion(t *testing.T) {
	rec := fiber.NewReconciler(newCOM())
	tick1 := com.NewTickState(1, nil, nil)
	rec.Render(tick1, fiber.Fragment("", fiber.Com(leaf, "a", nil), fiber.Com(leaf, "b", nil)))

	tick2 := com.NewTickState(2, nil, nil)
	dirty := rec.Render(tick2, fiber.Fragment("", fiber.Com(leaf, "a", nil)))

	var sawDeletion bool
	for _, f := range dirty {
		if f.Key == "b" && f.Flags.Has(fiber.Deletion) {
			sawDeletion = true
		}
	}
	assert.True(t, sawDeletion, "dropping a keyed child must flag it for deletion")
}

func TestCommit_MarksFiberMountedAndRunsHooks(t *testing.T) {
	rec := fiber.NewReconciler(newCOM())
	tick := com.NewTickState(1, nil, nil)
	dirty := rec.Render(tick, fiber.Com(leaf, "", nil))

	var mounted, committed int
	c := &fiber.Committer{
		OnMount:  func(f *fiber.FiberNode) { mounted++ },
		OnCommit: func(f *fiber.FiberNode) { committed++ },
	}
	c.Commit(dirty)

	assert.Equal(t, 1, mounted)
	assert.Equal(t, 1, committed)
	assert.True(t, rec.Root().Mounted())
	assert.Equal(t, fiber.NoFlags, rec.Root().Flags, "commit must clear flags once applied")
}

func TestCommit_UnmountRunsHookCleanups(t *testing.T) {
	rec := fiber.NewReconciler(newCOM())
	tick1 := com.NewTickState(1, nil, nil)
	dirty := rec.Render(tick1, fiber.Com(leaf, "a", nil))
	c := &fiber.Committer{}
	c.Commit(dirty)

	root := rec.Root()
	ran := false
	root.Hooks = append(root.Hooks, &fiber.HookCell{Kind: "effect", Cleanup: func() { ran = true }})

	tick2 := com.NewTickState(2, nil, nil)
	dirty2 := rec.Render(tick2, fiber.Fragment(""))
	c.Commit(dirty2)

	assert.True(t, ran, "unmounting a fiber must invoke its hook cleanups")
}
