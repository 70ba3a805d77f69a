package com_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/model"
	"github.com/fiberloom/engine/telemetry"
)

func newCOM() *com.COM {
	return com.New(telemetry.Noop())
}

func TestAddMessage_ConsolidatesMultipleSystemMessagesIntoOne(t *testing.T) {
	c := newCOM()
	c.AddMessage(model.Message{Role: model.RoleSystem, Content: []model.Block{model.Text("a")}}, nil, com.VisibilityModel)
	c.AddMessage(model.Message{Role: model.RoleSystem, Content: []model.Block{model.Text("b")}}, nil, com.VisibilityModel)

	sys := c.ConsolidatedSystemMessage()
	require.NotNil(t, sys)
	require.Len(t, sys.Content, 2)
	assert.Equal(t, "a", sys.Content[0].Text)
	assert.Equal(t, "b", sys.Content[1].Text)
	assert.Empty(t, c.Timeline(), "system-role messages never land on the timeline")
}

func TestConsolidatedSystemMessage_NilWhenNoneAdded(t *testing.T) {
	c := newCOM()
	assert.Nil(t, c.ConsolidatedSystemMessage())
}

func TestResolveControl_NoRequestsContinues(t *testing.T) {
	c := newCOM()
	status, reason := c.ResolveControl()
	assert.Equal(t, com.StatusContinue, status)
	assert.Empty(t, reason)
}

func TestResolveControl_HighestPriorityStopWins(t *testing.T) {
	c := newCOM()
	c.RequestStop(com.ControlRequest{OwnerID: "low", Priority: 1, TerminationReason: "low priority stop"})
	c.RequestStop(com.ControlRequest{OwnerID: "high", Priority: 10, TerminationReason: "high priority stop"})

	status, reason := c.ResolveControl()
	assert.Equal(t, com.StatusCompleted, status)
	assert.Equal(t, "high priority stop", reason)
}

func TestResolveControl_TiesFavorTheLastRegistered(t *testing.T) {
	c := newCOM()
	c.RequestStop(com.ControlRequest{OwnerID: "first", Priority: 5, TerminationReason: "first"})
	c.RequestStop(com.ControlRequest{OwnerID: "second", Priority: 5, TerminationReason: "second"})

	_, reason := c.ResolveControl()
	assert.Equal(t, "second", reason, "a tie must favor the most recently registered request")
}

func TestResolveControl_ContinueRequestOverridesLowerPriorityStop(t *testing.T) {
	c := newCOM()
	c.RequestStop(com.ControlRequest{OwnerID: "stopper", Priority: 1, TerminationReason: "stop"})
	c.RequestContinue(com.ControlRequest{OwnerID: "continuer", Priority: 10})

	status, _ := c.ResolveControl()
	assert.Equal(t, com.StatusContinue, status)
}

func TestClearControlRequests_EmptiesTheBuffer(t *testing.T) {
	c := newCOM()
	c.RequestStop(com.ControlRequest{OwnerID: "a", Priority: 1})
	c.ClearControlRequests()
	assert.Empty(t, c.ControlRequests())
}

func TestClear_ResetsTickScopedStateButPreservesRefsStateAndListeners(t *testing.T) {
	c := newCOM()

	var eventsSeen int
	c.On(func(ev com.Event) { eventsSeen++ })

	c.AddMessage(model.Message{Role: model.RoleUser, Content: []model.Block{model.Text("hi")}}, nil, com.VisibilityModel)
	c.AddSection(com.Section{ID: "s1", Content: "hello"})
	c.AddTool(com.ToolEntry{Name: "t1"})
	c.AddMetadata("k", "v")
	c.SetState("persisted", 1)
	c.SetRef("conn", "handle")
	c.Abort("bad input")

	c.Clear()

	assert.Empty(t, c.Timeline(), "clear must reset the timeline")
	assert.Empty(t, c.Sections(), "clear must reset sections")
	assert.Empty(t, c.Tools(), "clear must reset tools")
	assert.Empty(t, c.Metadata(), "clear must reset execution metadata")

	aborted, _ := c.ShouldAbort()
	assert.False(t, aborted, "clear must reset the abort flag")

	v, ok := c.State("persisted")
	require.True(t, ok, "clear must NOT reset shared state")
	assert.Equal(t, 1, v)

	ref, ok := c.Ref("conn")
	require.True(t, ok, "clear must NOT reset refs")
	assert.Equal(t, "handle", ref)

	assert.Greater(t, eventsSeen, 0, "clear must NOT remove listeners")
	before := eventsSeen
	c.AddMetadata("k2", "v2")
	assert.Greater(t, eventsSeen, before, "listener registered before clear must still fire afterwards")
}

func TestAddTool_ReregisteringSameNameDoesNotDuplicateOrder(t *testing.T) {
	c := newCOM()
	c.AddTool(com.ToolEntry{Name: "search"})
	c.AddTool(com.ToolEntry{Name: "search", Definition: model.ToolDefinition{Description: "v2"}})

	tools := c.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "v2", tools[0].Definition.Description)
}

func TestAddSection_CombinesStringContentWithBlankLineSeparator(t *testing.T) {
	c := newCOM()
	c.AddSection(com.Section{ID: "notes", Content: "first"})
	c.AddSection(com.Section{ID: "notes", Content: "second"})

	sections := c.Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, "first\n\nsecond", sections[0].Content)
}

func TestRequestRecompile_TakeClearsFlagAndReasons(t *testing.T) {
	c := newCOM()
	c.RequestRecompile("reason one")
	c.RequestRecompile("reason two")

	requested, reasons := c.TakeRecompileRequest()
	assert.True(t, requested)
	assert.Equal(t, []string{"reason one", "reason two"}, reasons)

	requested, reasons = c.TakeRecompileRequest()
	assert.False(t, requested)
	assert.Nil(t, reasons)
}

func TestQueueMessage_FIFOOrder(t *testing.T) {
	c := newCOM()
	c.QueueMessage(model.Message{ID: "1"})
	c.QueueMessage(model.Message{ID: "2"})

	msg, ok := c.DequeueMessage()
	require.True(t, ok)
	assert.Equal(t, "1", msg.ID)

	assert.Len(t, c.QueuedMessages(), 1)
}
