// Package com implements the Context Object Model: the mutable per-execution
// semantic state a component tree reads and writes while an agent tick
// renders. It is the foundation package of the engine (fiber, hooks, compile,
// and tick all depend on it) and intentionally has no dependency on any of
// them to avoid import cycles.
package com

import (
	"sort"
	"sync"

	"github.com/fiberloom/engine/model"
	"github.com/fiberloom/engine/telemetry"
)

// COM holds all semantic state for a single execution (root, fork, or
// spawn). Timeline, message, section, tool, state, metadata and model
// mutations, and Clear, emit an Event on Bus before returning (§4.4);
// ephemeral entries, refs, user input, control and recompile requests,
// queued messages and abort change without an event. A single mutex guards
// every field; the tick orchestrator runs component rendering cooperatively
// on a single goroutine per spec §5.
type COM struct {
	*Bus
	Telemetry telemetry.Bundle

	mu sync.Mutex

	timeline       []TimelineEntry
	sections       map[string]*Section
	sectionOrder   []string
	systemMessages []model.Block
	ephemeral      []EphemeralEntry
	tools          map[string]*ToolEntry
	toolOrder      []string
	metadata       map[string]any
	state          map[string]any

	// refs survive clear() (§3): long-lived handles (connections, caches,
	// cross-tick accumulators) that components explicitly opt into keeping.
	refs map[string]any

	model        model.Adapter
	modelOptions model.Options

	// userInput is the read-only input for the current tick, seeded once at
	// tick 1 and never mutated by components (§4.5 step 1).
	userInput []model.Block

	controlRequests []ControlRequest

	recompileRequested bool
	recompileReasons    []string

	queuedMessages []model.Message

	shouldAbort  bool
	abortReason  string
}

// New constructs an empty COM. Pass telemetry.Noop() when no telemetry
// backend is wired.
func New(tel telemetry.Bundle) *COM {
	return &COM{
		Bus:       &Bus{},
		Telemetry: tel,
		sections:  make(map[string]*Section),
		tools:     make(map[string]*ToolEntry),
		metadata:  make(map[string]any),
		state:     make(map[string]any),
		refs:      make(map[string]any),
	}
}

// SetUserInput seeds the read-only input for the execution. Called once by
// the tick orchestrator before tick 1 (§4.5 step 1).
func (c *COM) SetUserInput(blocks []model.Block) {
	c.mu.Lock()
	c.userInput = blocks
	c.mu.Unlock()
}

// UserInput returns the tick's seed input.
func (c *COM) UserInput() []model.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userInput
}

// AddMessage appends a message to the timeline, or to the system-message
// buffer when role is RoleSystem (§4.3 step 3: exactly one consolidated
// system message is produced per tick from everything added this way).
func (c *COM) AddMessage(msg model.Message, tags []string, vis Visibility) string {
	if msg.Role == model.RoleSystem {
		c.mu.Lock()
		for _, b := range msg.Content {
			c.systemMessages = append(c.systemMessages, b)
		}
		c.mu.Unlock()
		c.Emit(Event{Type: EventMessageAdded, Key: msg.ID, Value: msg, Action: "system"})
		return msg.ID
	}
	entry := TimelineEntry{Kind: "message", Message: msg, ID: msg.ID, Tags: tags, Visibility: vis}
	c.mu.Lock()
	c.timeline = append(c.timeline, entry)
	c.mu.Unlock()
	c.Emit(Event{Type: EventMessageAdded, Key: msg.ID, Value: msg, Action: "add"})
	c.Emit(Event{Type: EventTimelineModified, Key: msg.ID, Value: entry, Action: "add"})
	return msg.ID
}

// AddTimelineEntry appends a preformatted or non-message timeline entry
// (e.g. a tool-result entry ingested verbatim, or an out-of-band event).
func (c *COM) AddTimelineEntry(entry TimelineEntry) {
	c.mu.Lock()
	c.timeline = append(c.timeline, entry)
	c.mu.Unlock()
	c.Emit(Event{Type: EventTimelineModified, Key: entry.ID, Value: entry, Action: "add"})
}

// Timeline returns a snapshot copy of the timeline.
func (c *COM) Timeline() []TimelineEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TimelineEntry, len(c.timeline))
	copy(out, c.timeline)
	return out
}

// ConsolidatedSystemMessage combines every block added via AddMessage with
// RoleSystem into the single system message for this tick (§4.3 step 3).
// Returns nil if nothing was added.
func (c *COM) ConsolidatedSystemMessage() *model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.systemMessages) == 0 {
		return nil
	}
	blocks := make([]model.Block, len(c.systemMessages))
	copy(blocks, c.systemMessages)
	return &model.Message{Role: model.RoleSystem, Content: blocks}
}

// AddSection creates or updates a named section. Calling AddSection again
// with the same ID combines content per §4.3's combination rule: string
// content is concatenated with a blank-line separator, []model.Block
// content is appended, and any other content type simply replaces the
// previous value.
func (c *COM) AddSection(s Section) {
	c.mu.Lock()
	existing, ok := c.sections[s.ID]
	if !ok {
		c.sections[s.ID] = &s
		c.sectionOrder = append(c.sectionOrder, s.ID)
		c.mu.Unlock()
		c.Emit(Event{Type: EventSectionUpdated, Key: s.ID, Value: s, Action: "add"})
		return
	}
	combined := combineSectionContent(existing.Content, s.Content)
	existing.Content = combined
	existing.FormattedContent = ""
	existing.FormattedBy = ""
	if s.Title != "" {
		existing.Title = s.Title
	}
	if s.Visibility != "" {
		existing.Visibility = s.Visibility
	}
	if len(s.Audience) > 0 {
		existing.Audience = s.Audience
	}
	if len(s.Tags) > 0 {
		existing.Tags = s.Tags
	}
	if s.Metadata != nil {
		existing.Metadata = s.Metadata
	}
	snapshot := *existing
	c.mu.Unlock()
	c.Emit(Event{Type: EventSectionUpdated, Key: s.ID, Value: snapshot, Action: "update"})
}

func combineSectionContent(prev, next any) any {
	if prev == nil {
		return next
	}
	if next == nil {
		return prev
	}
	if ps, ok := prev.(string); ok {
		if ns, ok := next.(string); ok {
			if ps == "" {
				return ns
			}
			return ps + "\n\n" + ns
		}
		return next
	}
	if pb, ok := prev.([]model.Block); ok {
		if nb, ok := next.([]model.Block); ok {
			out := make([]model.Block, 0, len(pb)+len(nb))
			out = append(out, pb...)
			out = append(out, nb...)
			return out
		}
		return next
	}
	return next
}

// Sections returns sections in the order they were first added.
func (c *COM) Sections() []Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Section, 0, len(c.sectionOrder))
	for _, id := range c.sectionOrder {
		out = append(out, *c.sections[id])
	}
	return out
}

// AddEphemeral registers ephemeral content for the current tick only;
// ephemeral content is cleared at the start of every tick (§3, §4.5 step 1).
func (c *COM) AddEphemeral(e EphemeralEntry) {
	c.mu.Lock()
	c.ephemeral = append(c.ephemeral, e)
	c.mu.Unlock()
}

// Ephemeral returns the ephemeral entries queued for this tick.
func (c *COM) Ephemeral() []EphemeralEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EphemeralEntry, len(c.ephemeral))
	copy(out, c.ephemeral)
	return out
}

// ClearEphemeral empties the ephemeral buffer. Called by the tick
// orchestrator at the start of every tick, not by components.
func (c *COM) ClearEphemeral() {
	c.mu.Lock()
	c.ephemeral = nil
	c.mu.Unlock()
}

// AddTool registers a tool by name, idempotently: re-registering the same
// name replaces the entry without error and without duplicating it in
// ToolOrder (§4.4).
func (c *COM) AddTool(t ToolEntry) {
	c.mu.Lock()
	_, existed := c.tools[t.Name]
	c.tools[t.Name] = &t
	if !existed {
		c.toolOrder = append(c.toolOrder, t.Name)
	}
	c.mu.Unlock()
	c.Emit(Event{Type: EventToolRegistered, Key: t.Name, Value: t})
}

// RemoveTool unregisters a tool by name. A no-op if the tool is not present.
func (c *COM) RemoveTool(name string) {
	c.mu.Lock()
	_, ok := c.tools[name]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.tools, name)
	for i, n := range c.toolOrder {
		if n == name {
			c.toolOrder = append(c.toolOrder[:i], c.toolOrder[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.Emit(Event{Type: EventToolRemoved, Key: name})
}

// Tools returns registered tools in registration order.
func (c *COM) Tools() []ToolEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ToolEntry, 0, len(c.toolOrder))
	for _, n := range c.toolOrder {
		out = append(out, *c.tools[n])
	}
	return out
}

// Tool looks up a registered tool by name.
func (c *COM) Tool(name string) (ToolEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tools[name]
	if !ok {
		return ToolEntry{}, false
	}
	return *t, true
}

// SetState sets a single state key, emitting state:changed with the
// previous value (§4.4). Returns the previous value.
func (c *COM) SetState(key string, value any) any {
	c.mu.Lock()
	prev := c.state[key]
	c.state[key] = value
	c.mu.Unlock()
	c.Emit(Event{Type: EventStateChanged, Key: key, Value: value, Previous: prev})
	return prev
}

// SetStatePartial applies a batch of state keys as a single logical update,
// emitting one state:changed event per key in the order given (§4.4:
// "ordered state:changed events").
func (c *COM) SetStatePartial(updates map[string]any, order []string) {
	if order == nil {
		order = make([]string, 0, len(updates))
		for k := range updates {
			order = append(order, k)
		}
		sort.Strings(order)
	}
	for _, k := range order {
		c.SetState(k, updates[k])
	}
}

// State reads a state key.
func (c *COM) State(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[key]
	return v, ok
}

// StateSnapshot returns a shallow copy of the entire state map.
func (c *COM) StateSnapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.state))
	for k, v := range c.state {
		out[k] = v
	}
	return out
}

// AddMetadata merges a key into the execution-level metadata map.
func (c *COM) AddMetadata(key string, value any) {
	c.mu.Lock()
	prev := c.metadata[key]
	c.metadata[key] = value
	c.mu.Unlock()
	c.Emit(Event{Type: EventMetadataChanged, Key: key, Value: value, Previous: prev})
}

// Metadata reads the execution-level metadata snapshot.
func (c *COM) Metadata() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// Ref gets or sets a value that survives Clear(). Components use this for
// state that must persist across a clear() call (connections, accumulators).
func (c *COM) Ref(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.refs[key]
	return v, ok
}

// SetRef stores a ref value.
func (c *COM) SetRef(key string, value any) {
	c.mu.Lock()
	c.refs[key] = value
	c.mu.Unlock()
}

// SetModel sets the active model adapter and its options for this
// execution.
func (c *COM) SetModel(adapter model.Adapter, opts model.Options) {
	c.mu.Lock()
	c.model = adapter
	c.modelOptions = opts
	c.mu.Unlock()
	c.Emit(Event{Type: EventModelChanged, Value: adapter})
}

// UnsetModel clears the active model adapter.
func (c *COM) UnsetModel() {
	c.mu.Lock()
	c.model = nil
	c.modelOptions = model.Options{}
	c.mu.Unlock()
	c.Emit(Event{Type: EventModelUnset})
}

// Model returns the active model adapter and options, and whether one is
// set.
func (c *COM) Model() (model.Adapter, model.Options, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model, c.modelOptions, c.model != nil
}

// RequestStop registers a request to end the execution at the end of the
// current tick, with the given priority and reason (§4.4). Higher-priority
// requests override lower ones; ties favor the most recently registered
// request to allow a late component to veto an earlier decision.
func (c *COM) RequestStop(req ControlRequest) {
	req.Kind = "stop"
	c.mu.Lock()
	c.controlRequests = append(c.controlRequests, req)
	c.mu.Unlock()
}

// RequestContinue registers a request to keep the execution running past
// what would otherwise be a stopping point.
func (c *COM) RequestContinue(req ControlRequest) {
	req.Kind = "continue"
	c.mu.Lock()
	c.controlRequests = append(c.controlRequests, req)
	c.mu.Unlock()
}

// ControlRequests returns the control requests registered this tick.
func (c *COM) ControlRequests() []ControlRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ControlRequest, len(c.controlRequests))
	copy(out, c.controlRequests)
	return out
}

// ResolveControl applies the highest-priority control request (ties broken
// by last-registered) and reports the resolved status plus termination
// reason, if any. Returns StatusContinue with no requests registered.
func (c *COM) ResolveControl() (ControlStatus, string) {
	reqs := c.ControlRequests()
	if len(reqs) == 0 {
		return StatusContinue, ""
	}
	best := reqs[0]
	for _, r := range reqs[1:] {
		if r.Priority >= best.Priority {
			best = r
		}
	}
	if best.Kind == "continue" {
		return StatusContinue, ""
	}
	return StatusCompleted, best.TerminationReason
}

// ClearControlRequests empties the control-request buffer. Called by the
// tick orchestrator at the start of every tick.
func (c *COM) ClearControlRequests() {
	c.mu.Lock()
	c.controlRequests = nil
	c.mu.Unlock()
}

// RequestRecompile asks the compile-stabilization loop to run another
// render+commit pass this tick (§4.5 step 3, §9 "compile-stabilization").
func (c *COM) RequestRecompile(reason string) {
	c.mu.Lock()
	c.recompileRequested = true
	if reason != "" {
		c.recompileReasons = append(c.recompileReasons, reason)
	}
	c.mu.Unlock()
}

// TakeRecompileRequest reports whether a recompile was requested since the
// last call and clears the flag (and reasons).
func (c *COM) TakeRecompileRequest() (bool, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	requested := c.recompileRequested
	reasons := c.recompileReasons
	c.recompileRequested = false
	c.recompileReasons = nil
	return requested, reasons
}

// QueueMessage appends a message to the FIFO queue consumed at the start of
// a future tick (§5: queued messages are consumed one per tick, in order).
func (c *COM) QueueMessage(msg model.Message) {
	c.mu.Lock()
	c.queuedMessages = append(c.queuedMessages, msg)
	c.mu.Unlock()
}

// DequeueMessage pops the oldest queued message, if any.
func (c *COM) DequeueMessage() (model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queuedMessages) == 0 {
		return model.Message{}, false
	}
	msg := c.queuedMessages[0]
	c.queuedMessages = c.queuedMessages[1:]
	return msg, true
}

// QueuedMessages returns a snapshot of messages still pending.
func (c *COM) QueuedMessages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.queuedMessages))
	copy(out, c.queuedMessages)
	return out
}

// Abort marks the execution for termination with the given reason. Distinct
// from RequestStop: Abort is unconditional and propagates across the
// execution graph per fork/spawn signal rules (exec package), whereas
// RequestStop is a cooperative per-tick vote.
func (c *COM) Abort(reason string) {
	c.mu.Lock()
	c.shouldAbort = true
	c.abortReason = reason
	c.mu.Unlock()
}

// ShouldAbort reports whether this execution has been aborted, and why.
func (c *COM) ShouldAbort() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldAbort, c.abortReason
}

// Clear resets all tick-scoped and execution-scoped state EXCEPT refs,
// state, and Bus listeners (§3: "clear() resets everything except refs,
// shared state, and listeners"). The model adapter and queued messages are
// also preserved, since they represent execution-level configuration and
// pending input rather than render output.
func (c *COM) Clear() {
	c.mu.Lock()
	c.timeline = nil
	c.sections = make(map[string]*Section)
	c.sectionOrder = nil
	c.systemMessages = nil
	c.ephemeral = nil
	c.tools = make(map[string]*ToolEntry)
	c.toolOrder = nil
	c.metadata = make(map[string]any)
	c.controlRequests = nil
	c.recompileRequested = false
	c.recompileReasons = nil
	c.shouldAbort = false
	c.abortReason = ""
	c.mu.Unlock()
	c.Emit(Event{Type: EventCleared})
}
