package com

import "sync"

// EventType names a COM mutation event. Bit-exact names matter: external
// subscribers (hooks, telemetry exporters) match on these strings.
type EventType string

const (
	EventMessageAdded     EventType = "message:added"
	EventTimelineModified EventType = "timeline:modified"
	EventSectionUpdated   EventType = "section:updated"
	EventToolRegistered   EventType = "tool:registered"
	EventToolRemoved      EventType = "tool:removed"
	EventStateChanged     EventType = "state:changed"
	EventMetadataChanged  EventType = "metadata:changed"
	EventModelChanged     EventType = "model:changed"
	EventModelUnset       EventType = "model:unset"
	EventCleared          EventType = "state:cleared"
	EventExecutionMessage EventType = "execution:message"
)

// Event is a single COM mutation notification delivered synchronously to
// every listener before the mutating call returns (§4.4).
type Event struct {
	Type EventType
	// Key names the affected entity for keyed events (state key, tool name,
	// section id, metadata key). Empty when not applicable.
	Key string
	// Value is the new value for the event, when applicable.
	Value any
	// Previous is the prior value for the event, when applicable (e.g.
	// state:changed carries both).
	Previous any
	// Action distinguishes "add" vs "update" for events that can mean
	// either (timeline:modified, section:updated).
	Action string
}

// Listener reacts to COM events. Listener exceptions (panics) are isolated
// by Bus.Emit and never interrupt the mutator or other listeners.
type Listener func(Event)

// Bus is a synchronous, ordered multi-listener event dispatcher. clear()
// never removes listeners (§4.4 invariant).
type Bus struct {
	mu        sync.Mutex
	listeners []Listener
}

// On registers a listener and returns an unsubscribe function.
func (b *Bus) On(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := len(b.listeners)
	b.listeners = append(b.listeners, l)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.listeners) {
			b.listeners[idx] = nil
		}
	}
}

// Emit delivers ev to every registered listener in registration order.
// Listener panics are recovered and discarded so one bad subscriber cannot
// break the mutator.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	snapshot := make([]Listener, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.Unlock()
	for _, l := range snapshot {
		if l == nil {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			l(ev)
		}()
	}
}
