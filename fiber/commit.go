package fiber

// Committer applies the effects a render pass recorded (mount, update,
// unmount, ref attachment) against the real world: hook effect callbacks,
// ref tables, and cleanup functions. Split from Render so the reconciler
// stays pure (diff only) and all side effects happen in one explicit phase
// (§9: "commit is the only phase allowed to run effects").
type Committer struct {
	// OnMount is called once per fiber the first time it is committed.
	OnMount func(f *FiberNode)
	// OnUnmount is called once per fiber being removed, after its children
	// have already been unmounted (DFS post-order, children before parent).
	OnUnmount func(f *FiberNode)
	// OnCommit is called for every fiber in the commit set, mounted or
	// updated, after mount/unmount bookkeeping.
	OnCommit func(f *FiberNode)
}

// Commit applies the given dirty-fiber set, which Render produces in
// deletions-first order. Deletions are unmounted bottom-up per subtree;
// remaining placements/updates are then committed and refs attached.
func (c *Committer) Commit(nodes []*FiberNode) {
	for _, f := range nodes {
		if f.Flags.Has(Deletion) {
			c.unmountSubtree(f)
		}
	}
	for _, f := range nodes {
		if f.Flags.Has(Deletion) {
			continue
		}
		wasMounted := f.mounted
		if !wasMounted && c.OnMount != nil {
			c.OnMount(f)
		}
		f.mounted = true
		if c.OnCommit != nil {
			c.OnCommit(f)
		}
		if f.Flags.Has(RefFlag) && f.Ref != nil {
			f.Ref(f)
		}
		f.Flags = NoFlags
	}
}

func (c *Committer) unmountSubtree(f *FiberNode) {
	for child := f.Child; child != nil; child = child.Sibling {
		c.unmountSubtree(child)
	}
	for _, cell := range f.Hooks {
		if cell != nil && cell.Cleanup != nil {
			cell.Cleanup()
			cell.Cleanup = nil
		}
	}
	if f.Ref != nil {
		f.Ref(nil)
	}
	if c.OnUnmount != nil {
		c.OnUnmount(f)
	}
}
