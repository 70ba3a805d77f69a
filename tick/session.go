// Package tick implements the Tick Orchestrator: the per-tick phase state
// machine that drives a single pass of an execution from input through
// compiled structure, model call, tool execution, and ingestion back into
// the Context Object Model (§4.5).
package tick

import (
	"context"
	"fmt"
	"time"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/compile"
	"github.com/fiberloom/engine/coordinate"
	"github.com/fiberloom/engine/errtax"
	"github.com/fiberloom/engine/exec"
	"github.com/fiberloom/engine/fiber"
	"github.com/fiberloom/engine/hooks"
	"github.com/fiberloom/engine/ids"
	"github.com/fiberloom/engine/model"
	"github.com/fiberloom/engine/stream"
	"github.com/fiberloom/engine/telemetry"
)

// Phase is one state in the per-tick state machine (§4.5).
type Phase string

const (
	PhaseStarting       Phase = "starting"
	PhaseCompiling       Phase = "compiling"
	PhaseAwaitingForks   Phase = "awaiting-forks"
	PhaseApplying        Phase = "applying"
	PhaseModel           Phase = "model"
	PhaseTools           Phase = "tools"
	PhaseIngesting       Phase = "ingesting"
	PhaseEnded           Phase = "ended"
)

// Session is one tick orchestrator bound to a single execution handle. It
// owns the reconciler/committer/effect-registry triad for that execution
// and drives ticks against it until the execution ends.
type Session struct {
	Handle *exec.Handle
	Graph  *exec.Graph
	COM    *com.COM

	Root    fiber.Element
	Loop    *compile.Loop
	Effects *hooks.EffectRegistry

	Confirmations *coordinate.ToolConfirmationCoordinator
	ClientTools   *coordinate.ClientToolCoordinator
	Sink          stream.Sink

	MaxTicks int

	tel telemetry.Bundle

	phase Phase
	tickN int
	prev  *com.TickState
}

// NewSession wires a Session around a fresh COM/Handle/reconciler stack for
// root fiber element root.
func NewSession(c *com.COM, handle *exec.Handle, graph *exec.Graph, root fiber.Element, tel telemetry.Bundle) *Session {
	rec := fiber.NewReconciler(c)
	effects := hooks.NewEffectRegistry()
	committer := &fiber.Committer{
		OnMount: func(f *fiber.FiberNode) {
			effects.Run(hooks.PhaseMount)
		},
		OnUnmount: func(f *fiber.FiberNode) {
			effects.Run(hooks.PhaseUnmount)
		},
	}
	return &Session{
		Handle: handle,
		Graph:  graph,
		COM:    c,
		Root:   root,
		Loop: &compile.Loop{
			Reconciler: rec,
			Committer:  committer,
			Effects:    effects,
			COM:        c,
		},
		Effects:       effects,
		Confirmations: coordinate.NewToolConfirmationCoordinator(),
		ClientTools:   coordinate.NewClientToolCoordinator(),
		tel:           tel,
		phase:         PhaseStarting,
	}
}

// Phase returns the orchestrator's current phase.
func (s *Session) Phase() Phase { return s.phase }

func (s *Session) setPhase(p Phase) { s.phase = p }

func (s *Session) emit(ctx context.Context, kind stream.Kind, data any) {
	if s.Sink == nil {
		return
	}
	_ = s.Sink.Send(ctx, stream.Event{
		Kind: kind, ID: ids.NewEventID(), PID: s.Handle.PID, Tick: s.tickN, Timestamp: time.Now().Unix(), Data: data,
	})
}

// Tick runs one full pass of the state machine and reports the resolved
// control status. Callers (Execute/Stream) loop calling Tick until it
// returns a terminal status or MaxTicks is reached.
func (s *Session) Tick(ctx context.Context, adapter model.Adapter, input []model.Block) (com.ControlStatus, string, error) {
	s.tickN++
	tickState := com.NewTickState(s.tickN, s.prev, input)
	s.prev = tickState

	s.setPhase(PhaseStarting)
	s.emit(ctx, stream.KindTickStart, stream.TickStartData{TickNumber: s.tickN})
	s.COM.SetUserInput(input)
	s.COM.ClearEphemeral()
	s.COM.ClearControlRequests()
	s.Effects.Run(hooks.PhaseTickStart)

	if aborted, reason := s.COM.ShouldAbort(); aborted {
		s.setPhase(PhaseEnded)
		return com.StatusAborted, reason, nil
	}

	s.setPhase(PhaseCompiling)
	structure, err := s.Loop.Run(tickState, s.Root)
	if err != nil {
		s.setPhase(PhaseEnded)
		return com.StatusAborted, "", fmt.Errorf("tick: compile: %w", err)
	}

	s.setPhase(PhaseAwaitingForks)
	if err := s.awaitForks(ctx); err != nil {
		s.setPhase(PhaseEnded)
		return com.StatusAborted, "", err
	}

	if aborted, reason := s.COM.ShouldAbort(); aborted {
		s.setPhase(PhaseEnded)
		return com.StatusAborted, reason, nil
	}

	s.setPhase(PhaseApplying)
	formatted := compile.ToFormattedInput(structure, s.modelOptions())

	s.setPhase(PhaseModel)
	resp, err := s.callModel(ctx, adapter, formatted)
	if err != nil {
		cat := errtax.Classify(err)
		s.emit(ctx, stream.KindEngineError, stream.EngineErrorData{Message: err.Error(), Category: string(cat)})
		if !cat.Recoverable() {
			s.setPhase(PhaseEnded)
			return com.StatusAborted, err.Error(), err
		}
	}

	s.setPhase(PhaseTools)
	toolResults, err := s.runTools(ctx, resp.ToolCalls)
	if err != nil {
		s.setPhase(PhaseEnded)
		return com.StatusAborted, "", err
	}

	s.setPhase(PhaseIngesting)
	s.ingest(resp, toolResults)
	tickState.Usage = resp.Usage

	s.Effects.Run(hooks.PhaseTickEnd)

	status, reason := s.COM.ResolveControl()
	if resp.ShouldStop && status == com.StatusContinue {
		status = com.StatusCompleted
		if resp.StopReason != nil {
			reason = resp.StopReason.Reason
		}
	}
	tickState.Stop(reason)
	s.emit(ctx, stream.KindTickEnd, stream.TickEndData{TickNumber: s.tickN, StopReason: reason})

	if s.MaxTicks > 0 && s.tickN >= s.MaxTicks && status == com.StatusContinue {
		status = com.StatusCompleted
		reason = "max ticks reached"
	}

	s.setPhase(PhaseEnded)
	return status, reason, nil
}

func (s *Session) modelOptions() model.Options {
	_, opts, _ := s.COM.Model()
	return opts
}

// awaitForks blocks until every outstanding fork of this execution has
// completed, per the Awaiting-Forks phase (§4.5). Spawns are never waited
// on here; they run independently.
func (s *Session) awaitForks(ctx context.Context) error {
	if s.Graph == nil {
		return nil
	}
	for {
		outstanding := s.Graph.OutstandingForks(s.Handle.PID)
		if len(outstanding) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *Session) callModel(ctx context.Context, adapter model.Adapter, formatted model.FormattedInput) (model.EngineResponse, error) {
	if adapter == nil {
		return model.EngineResponse{}, nil
	}
	req, err := adapter.FromEngineState(ctx, formatted)
	if err != nil {
		return model.EngineResponse{}, fmt.Errorf("tick: FromEngineState: %w", err)
	}
	caps := adapter.Metadata().Capabilities
	var raw any
	if caps.Streaming && s.Sink != nil {
		chunks, err := adapter.Stream(ctx, req)
		if err != nil {
			return model.EngineResponse{}, fmt.Errorf("tick: Stream: %w", err)
		}
		raw, err = adapter.ProcessStream(ctx, chunks)
		if err != nil {
			return model.EngineResponse{}, fmt.Errorf("tick: ProcessStream: %w", err)
		}
	} else {
		raw, err = adapter.Generate(ctx, req)
		if err != nil {
			return model.EngineResponse{}, fmt.Errorf("tick: Generate: %w", err)
		}
	}
	return adapter.ToEngineState(ctx, raw)
}

// ToolResult pairs a tool call with its execution outcome for ingestion.
type ToolResult struct {
	Call    model.ToolCall
	Blocks  []model.Block
	IsError bool
}

func (s *Session) runTools(ctx context.Context, calls []model.ToolCall) ([]ToolResult, error) {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		s.emit(ctx, stream.KindToolCall, stream.ToolCallData{ToolCallID: call.ID, ToolName: call.Name, Input: call.Input})

		entry, ok := s.COM.Tool(call.Name)
		if !ok {
			results = append(results, ToolResult{Call: call, IsError: true,
				Blocks: []model.Block{model.Text(fmt.Sprintf("unknown tool %q", call.Name))}})
			continue
		}

		if needsConfirmation(entry, call.Input) {
			s.emit(ctx, stream.KindToolConfirmationRequired, stream.ToolConfirmationRequiredData{
				ToolCallID: call.ID, ToolName: call.Name, Input: call.Input,
			})
			decision := s.Confirmations.WaitForConfirmation(ctx, call.ID, 0)
			s.emit(ctx, stream.KindToolConfirmationResult, stream.ToolConfirmationResultData{
				ToolCallID: call.ID, Approved: decision.Approved, Reason: decision.Reason,
			})
			if !decision.Approved {
				results = append(results, ToolResult{Call: call, IsError: true,
					Blocks: []model.Block{model.Text("tool call denied: " + decision.Reason)}})
				continue
			}
		}

		blocks, isErr := s.execOne(ctx, entry, call)
		results = append(results, ToolResult{Call: call, Blocks: blocks, IsError: isErr})
		s.emit(ctx, stream.KindToolResult, stream.ToolResultData{ToolCallID: call.ID, Result: blocks, IsError: isErr})
	}
	return results, nil
}

func needsConfirmation(entry com.ToolEntry, input any) bool {
	if entry.RequiresConfirmation == nil {
		return false
	}
	return entry.RequiresConfirmation(input)
}

func (s *Session) execOne(ctx context.Context, entry com.ToolEntry, call model.ToolCall) ([]model.Block, bool) {
	defer func() {
		if r := recover(); r != nil {
			_ = r
		}
	}()
	blocks, err := entry.Handler(call.Input)
	if err != nil {
		return []model.Block{model.Text(err.Error())}, true
	}
	return blocks, false
}

func (s *Session) ingest(resp model.EngineResponse, toolResults []ToolResult) {
	for _, msg := range resp.NewTimelineEntries {
		s.COM.AddMessage(msg, nil, com.VisibilityModel)
		s.Effects.Run(hooks.PhaseOnMessage)
	}
	for _, su := range resp.UpdatedSections {
		s.COM.AddSection(com.Section{ID: su.ID, Title: su.Title, Content: su.Content})
	}
	for _, tr := range toolResults {
		blocks := []model.Block{model.ToolResult(tr.Call.ID, tr.Blocks, tr.IsError)}
		s.COM.AddMessage(model.Message{Role: model.RoleTool, Content: blocks}, nil, com.VisibilityModel)
	}
	for _, ex := range resp.ExecutedToolResults {
		blocks := []model.Block{model.ToolResult(ex.ToolCallID, ex.Result, ex.IsError)}
		s.COM.AddMessage(model.Message{Role: model.RoleTool, Content: blocks}, nil, com.VisibilityModel)
	}
}

// Execute runs ticks until Tick reports a terminal status or MaxTicks is
// reached (the non-streaming entry point).
func (s *Session) Execute(ctx context.Context, adapter model.Adapter, input []model.Block) (com.ControlStatus, string, error) {
	s.emit(ctx, stream.KindExecutionStart, stream.ExecutionStartData{RootPID: s.Handle.RootPID})
	status := com.StatusContinue
	reason := ""
	for status == com.StatusContinue {
		var err error
		var next []model.Block
		if s.tickN == 0 {
			next = input
		} else if msg, ok := s.COM.DequeueMessage(); ok {
			next = msg.Content
		}
		status, reason, err = s.Tick(ctx, adapter, next)
		if err != nil {
			s.Handle.SetStatus(exec.StatusFailed, err.Error())
			s.emit(ctx, stream.KindExecutionEnd, stream.ExecutionEndData{Reason: err.Error()})
			return status, reason, err
		}
	}
	if status == com.StatusAborted {
		s.Handle.SetStatus(exec.StatusCancelled, reason)
	} else {
		s.Handle.SetStatus(exec.StatusCompleted, reason)
	}
	s.emit(ctx, stream.KindExecutionEnd, stream.ExecutionEndData{Reason: reason})
	return status, reason, nil
}

// Stream runs ticks the same way Execute does but is the entry point
// callers use when they've wired a Sink for live updates; the only
// difference from Execute is intent-signaling at the call site since
// streaming delivery is driven uniformly by s.Sink inside Tick.
func (s *Session) Stream(ctx context.Context, adapter model.Adapter, input []model.Block, sink stream.Sink) (com.ControlStatus, string, error) {
	s.Sink = sink
	return s.Execute(ctx, adapter, input)
}
