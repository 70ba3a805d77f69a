// Package durable defines the workflow engine abstraction backends plug
// into so an execution can run as a durable workflow instead of an
// in-process goroutine: a pluggable interface so the tick orchestrator can
// target Temporal, an in-memory engine, or a custom backend without
// modification (§1: durable execution is an external collaborator; this
// package is the seam).
package durable

import (
	"context"
	"time"

	"github.com/fiberloom/engine/telemetry"
)

type (
	// Engine abstracts workflow registration and execution so adapters
	// (Temporal, in-memory, or custom) can be swapped without touching tick
	// orchestrator code. Implementations translate these generic types into
	// backend-specific primitives.
	Engine interface {
		// RegisterWorkflow registers a workflow definition with the engine.
		// Called during service initialization before starting the worker
		// pool. Returns an error if the workflow name is already registered.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition. Activities are
		// short-lived tasks invoked from workflows (in this engine, a tool
		// call is the canonical activity). Must be called before starting
		// workers.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow initiates a new workflow execution (one execution's
		// tick loop) and returns a handle for interacting with it. The
		// workflow ID in req must be unique for the engine instance.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is the durable execution entry point: it receives a
	// WorkflowContext and the execution's seed input, and drives tick.Session
	// to completion. It must be deterministic when run against a replaying
	// backend like Temporal.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to workflow handlers within
	// the deterministic execution environment of a workflow.
	//
	// Implementations must ensure deterministic replay: operations that
	// interact with the workflow engine (ExecuteActivity, SignalChannel)
	// must produce deterministic results when replayed. Direct I/O, random
	// number generation, or system time access within workflows violates
	// determinism.
	WorkflowContext interface {
		// Context returns the Go context for the workflow.
		Context() context.Context

		// WorkflowID returns the unique identifier for this workflow
		// execution. The tick orchestrator uses this as the execution's PID
		// when running under a durable backend.
		WorkflowID() string

		// RunID returns the engine-assigned run identifier.
		RunID() string

		// ExecuteActivity schedules an activity (typically a tool call) and
		// waits for its result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules an activity without blocking,
		// returning a Future. Used to run fork children's tool calls
		// concurrently with the parent's own tick.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns a channel for the given signal name (e.g.
		// "abort", "tool-confirmation", "queued-message").
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the current workflow time in a deterministic manner.
		Now() time.Time
	}

	// Future represents a pending activity result.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler with optional
	// defaults.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc handles an activity invocation (e.g. running one tool
	// call). Unlike workflows, activities can perform side effects.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior for an activity.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest contains the info needed to schedule an activity from
	// a workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle allows callers to interact with a running workflow.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy defines retry semantics shared by workflows and
	// activities.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes workflow signal delivery in an engine-agnostic
	// way. The tick orchestrator's tool-confirmation and abort propagation
	// (§4.6) are delivered this way when running under a durable backend.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)
