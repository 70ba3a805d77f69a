package coordinate

import (
	"context"
	"sync"
	"time"

	"github.com/fiberloom/engine/model"
)

// ClientToolResult is the outcome of a client-executed tool call.
type ClientToolResult struct {
	Blocks   []model.Block
	IsError  bool
	TimedOut bool
}

type clientToolEntry struct {
	ch   chan ClientToolResult
	once sync.Once
}

// ClientToolCoordinator coordinates CLIENT-execution-type tool calls
// (§6): the engine emits a tool_call event and waits here for the host
// application to deliver the result of running it externally.
type ClientToolCoordinator struct {
	mu      sync.Mutex
	pending map[string]*clientToolEntry
}

// NewClientToolCoordinator creates an empty coordinator.
func NewClientToolCoordinator() *ClientToolCoordinator {
	return &ClientToolCoordinator{pending: make(map[string]*clientToolEntry)}
}

// Await blocks for a result for toolCallID. If requiresResponse is false
// and nothing arrives before timeout, defaultResult is returned instead of
// timing out as an error.
func (c *ClientToolCoordinator) Await(ctx context.Context, toolCallID string, timeout time.Duration, requiresResponse bool, defaultResult ClientToolResult) ClientToolResult {
	entry := c.entry(toolCallID)

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-entry.ch:
		return res
	case <-ctx.Done():
		c.clear(toolCallID)
		return ClientToolResult{IsError: true, TimedOut: true}
	case <-timeoutCh:
		c.clear(toolCallID)
		if !requiresResponse {
			return defaultResult
		}
		return ClientToolResult{IsError: true, TimedOut: true}
	}
}

// Resolve delivers the client's tool result for toolCallID.
func (c *ClientToolCoordinator) Resolve(toolCallID string, res ClientToolResult) {
	entry := c.entry(toolCallID)
	entry.once.Do(func() { entry.ch <- res })
}

func (c *ClientToolCoordinator) entry(toolCallID string) *clientToolEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pending[toolCallID]
	if !ok {
		e = &clientToolEntry{ch: make(chan ClientToolResult, 1)}
		c.pending[toolCallID] = e
	}
	return e
}

func (c *ClientToolCoordinator) clear(toolCallID string) {
	c.mu.Lock()
	delete(c.pending, toolCallID)
	c.mu.Unlock()
}
