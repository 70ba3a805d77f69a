package coordinate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/coordinate"
	"github.com/fiberloom/engine/model"
)

func TestToolConfirmation_ResolveUnblocksWaiter(t *testing.T) {
	c := coordinate.NewToolConfirmationCoordinator()

	done := make(chan coordinate.ConfirmationResult, 1)
	go func() {
		done <- c.WaitForConfirmation(context.Background(), "call-1", 0)
	}()

	c.Resolve("call-1", coordinate.ConfirmationResult{Approved: true})

	select {
	case res := <-done:
		assert.True(t, res.Approved)
	case <-time.After(time.Second):
		t.Fatal("WaitForConfirmation never returned")
	}
}

func TestToolConfirmation_ContextCancelDeniesTheRequest(t *testing.T) {
	c := coordinate.NewToolConfirmationCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.WaitForConfirmation(ctx, "call-2", 0)
	assert.False(t, res.Approved)
	assert.Equal(t, "context cancelled", res.Reason)
}

func TestToolConfirmation_TimeoutDeniesTheRequest(t *testing.T) {
	c := coordinate.NewToolConfirmationCoordinator()
	res := c.WaitForConfirmation(context.Background(), "call-3", 5*time.Millisecond)
	assert.False(t, res.Approved)
	assert.Equal(t, "confirmation timed out", res.Reason)
}

func TestToolConfirmation_ResolveIsIdempotent(t *testing.T) {
	c := coordinate.NewToolConfirmationCoordinator()
	c.Resolve("call-4", coordinate.ConfirmationResult{Approved: true})
	c.Resolve("call-4", coordinate.ConfirmationResult{Approved: false, Reason: "second decision ignored"})

	res := c.WaitForConfirmation(context.Background(), "call-4", time.Second)
	assert.True(t, res.Approved, "only the first resolution should ever be delivered")
}

func TestToolConfirmation_CancelDeniesWithReason(t *testing.T) {
	c := coordinate.NewToolConfirmationCoordinator()
	c.Cancel("call-5", "execution aborted")

	res := c.WaitForConfirmation(context.Background(), "call-5", time.Second)
	assert.False(t, res.Approved)
	assert.Equal(t, "execution aborted", res.Reason)
}

func TestClientTool_AwaitReturnsDeliveredResult(t *testing.T) {
	c := coordinate.NewClientToolCoordinator()
	go c.Resolve("tc-1", coordinate.ClientToolResult{Blocks: []model.Block{model.Text("ok")}})

	res := c.Await(context.Background(), "tc-1", time.Second, true, coordinate.ClientToolResult{})
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "ok", res.Blocks[0].Text)
	assert.False(t, res.IsError)
}

func TestClientTool_AwaitUsesDefaultWhenResponseNotRequired(t *testing.T) {
	c := coordinate.NewClientToolCoordinator()
	def := coordinate.ClientToolResult{Blocks: []model.Block{model.Text("fallback")}}

	res := c.Await(context.Background(), "tc-2", 5*time.Millisecond, false, def)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "fallback", res.Blocks[0].Text)
	assert.False(t, res.TimedOut, "a default result is not itself a timeout error")
}

func TestClientTool_AwaitTimesOutAsErrorWhenResponseRequired(t *testing.T) {
	c := coordinate.NewClientToolCoordinator()
	res := c.Await(context.Background(), "tc-3", 5*time.Millisecond, true, coordinate.ClientToolResult{})
	assert.True(t, res.IsError)
	assert.True(t, res.TimedOut)
}
