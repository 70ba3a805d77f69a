package fiber

import (
	"reflect"

	"github.com/fiberloom/engine/com"
)

// Reconciler owns the current and work-in-progress fiber trees for one
// execution and performs render+diff passes over it.
type Reconciler struct {
	com  *com.COM
	root *FiberNode

	// deletions accumulates fibers removed this pass, for the committer to
	// unmount (in DFS children-before-parent order) before mounting new work.
	deletions []*FiberNode
}

// NewReconciler creates a reconciler rooted at a single top-level element.
func NewReconciler(c *com.COM) *Reconciler {
	return &Reconciler{com: c}
}

// Render performs one full render+diff pass from el as the new root,
// returning the set of fibers whose Flags are non-zero (the commit set),
// in an order safe to commit (deletions first, in DFS post-order; then the
// remaining tree in DFS pre-order).
func (r *Reconciler) Render(tick *com.TickState, el Element) []*FiberNode {
	r.deletions = nil
	prevRoot := r.root
	next := r.reconcileNode(tick, prevRoot, el, 0)
	r.root = next
	var out []*FiberNode
	out = append(out, r.deletions...)
	collectDirty(r.root, &out)
	return out
}

// Root returns the current fiber tree root.
func (r *Reconciler) Root() *FiberNode { return r.root }

func collectDirty(f *FiberNode, out *[]*FiberNode) {
	if f == nil {
		return
	}
	if f.Flags != NoFlags {
		*out = append(*out, f)
	}
	for c := f.Child; c != nil; c = c.Sibling {
		collectDirty(c, out)
	}
}

// reconcileNode matches el against an existing fiber (same position/key and
// same Type), reusing it with an Update flag when matched, or creating a
// fresh fiber with a Placement flag otherwise. It renders the component (if
// el.Type is a ComponentFunc) and recurses into children.
func (r *Reconciler) reconcileNode(tick *com.TickState, existing *FiberNode, el Element, index int) *FiberNode {
	var f *FiberNode
	sameType := existing != nil && sameElementType(existing, el)

	if sameType {
		f = existing
		f.Props = el.Props
		f.Flags = Update
	} else {
		f = &FiberNode{Type: el.Type, Key: el.Key, Props: el.Props}
		if existing != nil {
			existing.Flags |= Deletion
			r.deletions = append(r.deletions, existing)
		}
		f.Flags = Placement
	}
	f.Index = index
	f.Ref = el.Ref
	if el.Ref != nil {
		f.Flags |= RefFlag
	}

	children := el.Children
	if fn, ok := el.Type.(ComponentFunc); ok {
		rc := &RenderContext{fiber: f, com: r.com, tick: tick}
		rendered := fn(rc, el.Props)
		f.rendered = []Element{rendered}
		children = rendered.Children
		if rendered.Type != nil {
			// A component that itself renders an element wraps it as the
			// fiber's single child, so components and fragments compose.
			children = []Element{rendered}
		}
	}

	f.Child = r.reconcileChildren(tick, f, children)
	return f
}

func sameElementType(f *FiberNode, el Element) bool {
	if f.Key != el.Key {
		return false
	}
	return funcEqual(f.Type, el.Type)
}

// funcEqual compares element types for reconciliation identity. Go func
// values are not comparable with ==, so ComponentFunc identity is compared
// by underlying code pointer; non-func types (e.g. FragmentType) fall back
// to direct comparison.
func funcEqual(a, b any) bool {
	fa, aok := a.(ComponentFunc)
	fb, bok := b.(ComponentFunc)
	if aok != bok {
		return false
	}
	if aok {
		if fa == nil || fb == nil {
			return fa == nil && fb == nil
		}
		return reflect.ValueOf(fa).Pointer() == reflect.ValueOf(fb).Pointer()
	}
	return a == b
}

// reconcileChildren performs two-pass keyed matching: first by key (for
// elements that declare one), then fills remaining positions index-wise.
// This is the standard fiber-reconciler approach to avoid O(n^2) matching
// while still supporting reordering of keyed siblings (§9).
func (r *Reconciler) reconcileChildren(tick *com.TickState, parent *FiberNode, elements []Element) *FiberNode {
	existingByKey := make(map[string]*FiberNode)
	existingByIndex := make(map[int]*FiberNode)
	idx := 0
	for c := parent.Child; c != nil; c = c.Sibling {
		if c.Key != "" {
			existingByKey[c.Key] = c
		} else {
			existingByIndex[idx] = c
		}
		idx++
	}

	var first, last *FiberNode
	matched := make(map[*FiberNode]bool)
	for i, el := range elements {
		var match *FiberNode
		if el.Key != "" {
			match = existingByKey[el.Key]
		} else {
			match = existingByIndex[i]
		}
		child := r.reconcileNode(tick, match, el, i)
		if match != nil {
			matched[match] = true
		}
		child.Parent = parent
		if first == nil {
			first = child
		} else {
			last.Sibling = child
		}
		last = child
	}

	for _, c := range existingByKey {
		if !matched[c] {
			c.Flags |= Deletion
			r.deletions = append(r.deletions, c)
		}
	}
	for _, c := range existingByIndex {
		if !matched[c] {
			c.Flags |= Deletion
			r.deletions = append(r.deletions, c)
		}
	}
	return first
}
