package com

import "github.com/fiberloom/engine/model"

// Visibility controls which audience a piece of content is meant for.
type Visibility string

const (
	VisibilityModel    Visibility = "model"
	VisibilityObserver Visibility = "observer"
	VisibilityLog      Visibility = "log"
)

// EphemeralPosition places an ephemeral entry relative to the rest of the
// formatted input.
type EphemeralPosition string

const (
	PositionStart       EphemeralPosition = "start"
	PositionEnd         EphemeralPosition = "end"
	PositionBeforeUser  EphemeralPosition = "before-user"
	PositionAfterSystem EphemeralPosition = "after-system"
	PositionFlow        EphemeralPosition = "flow"
)

// TimelineEntry is one ordered item in the COM's timeline: a message or an
// out-of-band event.
type TimelineEntry struct {
	Kind       string // "message" | "event"
	Message    model.Message
	ID         string
	Tags       []string
	Visibility Visibility
	Metadata   map[string]any
	// Preformatted marks content that must not be re-wrapped by a renderer
	// (e.g. tool results ingested verbatim per §4.5 step 7).
	Preformatted bool
}

// Section is a named, optionally-titled piece of context consolidated into
// the system message each tick.
type Section struct {
	ID       string
	Title    string
	Content  any // string | []model.Block | map[string]any
	Visibility Visibility
	Audience   []string
	Tags       []string
	Metadata   map[string]any
	// FormattedContent and FormattedBy are carried with the section; the
	// engine does not populate them, and AddSection resets both when it
	// combines new content into an existing section.
	FormattedContent string
	FormattedBy      string
}

// EphemeralEntry is transient content rebuilt fresh every tick; cleared at
// the start of every tick (§3).
type EphemeralEntry struct {
	Content  []model.Block
	Position EphemeralPosition
	Order    int
	Type     string
	ID       string
	Tags     []string
	Metadata map[string]any
}

// ToolEntry pairs an executable tool with its provider-facing definition.
type ToolEntry struct {
	Name       string
	Handler    func(input any) ([]model.Block, error)
	Definition model.ToolDefinition
	// RequiresConfirmation reports whether a given call's input must be
	// confirmed before execution. Nil means never requires confirmation.
	RequiresConfirmation func(input any) bool
}

// ControlPriority orders competing stop/continue requests; higher wins.
type ControlPriority int

// ControlStatus is the resolved tick-control outcome.
type ControlStatus string

const (
	StatusContinue ControlStatus = "continue"
	StatusCompleted ControlStatus = "completed"
	StatusAborted   ControlStatus = "aborted"
)

// ControlRequest is a component's request to stop or continue at the end
// of the current tick (§4.4).
type ControlRequest struct {
	Kind             string // "stop" | "continue"
	OwnerID          string
	Priority         ControlPriority
	Reason           string
	TerminationReason string
	Status           ControlStatus
	Metadata         map[string]any
}
