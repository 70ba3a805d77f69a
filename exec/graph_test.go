package exec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/exec"
	"github.com/fiberloom/engine/telemetry"
)

func newCOM() *com.COM {
	return com.New(telemetry.Noop())
}

func TestPropagate_ForksReceiveAbortSpawnsDoNot(t *testing.T) {
	root := exec.NewRoot(newCOM())
	g := exec.NewGraph(root)

	fork := g.Fork(root, exec.InheritOptions{}, newCOM())
	spawn := g.Spawn(root, newCOM())

	g.Kill(root.PID, "test abort")

	assert.Equal(t, exec.StatusCancelled, root.Status())
	assert.Equal(t, exec.StatusCancelled, fork.Status(), "fork children must receive propagated abort")
	assert.Equal(t, exec.StatusRunning, spawn.Status(), "spawn children must never receive propagated signals")
}

func TestPropagate_RecursesThroughForkDescendants(t *testing.T) {
	root := exec.NewRoot(newCOM())
	g := exec.NewGraph(root)

	fork := g.Fork(root, exec.InheritOptions{}, newCOM())
	grandchildFork := g.Fork(fork, exec.InheritOptions{}, newCOM())
	grandchildSpawn := g.Spawn(fork, newCOM())

	g.Kill(root.PID, "cascading abort")

	assert.Equal(t, exec.StatusCancelled, grandchildFork.Status(), "abort must cascade through nested forks")
	assert.Equal(t, exec.StatusRunning, grandchildSpawn.Status(), "a spawn nested under a fork still never receives the signal")
}

func TestOutstandingForks_OnlyReportsRunningForks(t *testing.T) {
	root := exec.NewRoot(newCOM())
	g := exec.NewGraph(root)

	fork1 := g.Fork(root, exec.InheritOptions{}, newCOM())
	fork2 := g.Fork(root, exec.InheritOptions{}, newCOM())
	g.Spawn(root, newCOM())

	fork1.SetStatus(exec.StatusCompleted, "")

	outstanding := g.OutstandingForks(root.PID)
	require.Len(t, outstanding, 1)
	assert.Equal(t, fork2.PID, outstanding[0].PID)
}

func TestOrphans_RunningForkUnderTerminalParentIsOrphaned(t *testing.T) {
	root := exec.NewRoot(newCOM())
	g := exec.NewGraph(root)

	fork := g.Fork(root, exec.InheritOptions{}, newCOM())
	root.SetStatus(exec.StatusCompleted, "")

	orphans := g.Orphans()
	require.Len(t, orphans, 1)
	assert.Equal(t, fork.PID, orphans[0].PID)
}

func TestFork_InheritsTraceIDWhenRequested(t *testing.T) {
	root := exec.NewRoot(newCOM())
	g := exec.NewGraph(root)

	inherited := g.Fork(root, exec.InheritOptions{TraceID: true}, newCOM())
	assert.Equal(t, root.TraceID, inherited.TraceID)

	fresh := g.Fork(root, exec.InheritOptions{}, newCOM())
	assert.NotEqual(t, root.TraceID, fresh.TraceID)
}

func TestSpawn_AlwaysGetsAFreshTraceID(t *testing.T) {
	root := exec.NewRoot(newCOM())
	g := exec.NewGraph(root)

	spawn := g.Spawn(root, newCOM())
	assert.NotEqual(t, root.TraceID, spawn.TraceID)
}
