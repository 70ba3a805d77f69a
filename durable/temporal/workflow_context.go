// This file adapts a Temporal workflow.Context into durable.WorkflowContext,
// so tick.Session code written against the durable package's generic
// activity/signal/time primitives runs unmodified on Temporal. Temporal
// cancellation errors are normalized to context.Canceled so callers can
// classify them the same way regardless of durable backend.
package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fiberloom/engine/durable"
	"github.com/fiberloom/engine/telemetry"
)

type temporalWorkflowContext struct {
	engine     *Engine
	ctx        workflow.Context
	workflowID string
	runID      string
	logger     telemetry.Logger
	metrics    telemetry.Metrics
	tracer     telemetry.Tracer
	baseCtx    context.Context
}

func newTemporalWorkflowContext(e *Engine, ctx workflow.Context) *temporalWorkflowContext {
	info := workflow.GetInfo(ctx)
	wfCtx := &temporalWorkflowContext{
		engine:     e,
		ctx:        ctx,
		workflowID: info.WorkflowExecution.ID,
		runID:      info.WorkflowExecution.RunID,
		logger:     e.logger,
		metrics:    e.metrics,
		tracer:     e.tracer,
		baseCtx:    context.Background(),
	}
	e.trackWorkflowContext(wfCtx.runID, wfCtx)
	return wfCtx
}

func normalizeTemporalError(err error) error {
	if err == nil {
		return nil
	}
	if temporal.IsCanceledError(err) {
		return context.Canceled
	}
	return err
}

func convertRetryPolicy(r durable.RetryPolicy) *temporal.RetryPolicy {
	if r.MaxAttempts == 0 && r.InitialInterval == 0 && r.BackoffCoefficient == 0 {
		return nil
	}
	policy := &temporal.RetryPolicy{}
	if r.MaxAttempts > 0 {
		policy.MaximumAttempts = int32(r.MaxAttempts)
	}
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}
	if r.BackoffCoefficient > 0 {
		policy.BackoffCoefficient = r.BackoffCoefficient
	}
	return policy
}

func (w *temporalWorkflowContext) Context() context.Context {
	return w.baseCtx
}

func (w *temporalWorkflowContext) WorkflowID() string { return w.workflowID }
func (w *temporalWorkflowContext) RunID() string      { return w.runID }

func (w *temporalWorkflowContext) Logger() telemetry.Logger   { return w.logger }
func (w *temporalWorkflowContext) Metrics() telemetry.Metrics { return w.metrics }
func (w *temporalWorkflowContext) Tracer() telemetry.Tracer   { return w.tracer }

func (w *temporalWorkflowContext) Now() time.Time {
	return workflow.Now(w.ctx)
}

func (w *temporalWorkflowContext) activityOptions(req durable.ActivityRequest) workflow.ActivityOptions {
	w.engine.mu.Lock()
	defaults, ok := w.engine.activityOptions[req.Name]
	w.engine.mu.Unlock()

	opts := workflow.ActivityOptions{
		TaskQueue:           req.Queue,
		StartToCloseTimeout: req.Timeout,
	}
	if opts.TaskQueue == "" && ok {
		opts.TaskQueue = defaults.Queue
	}
	if opts.StartToCloseTimeout == 0 {
		if ok && defaults.Timeout > 0 {
			opts.StartToCloseTimeout = defaults.Timeout
		} else {
			opts.StartToCloseTimeout = 30 * time.Second
		}
	}
	rp := req.RetryPolicy
	if ok {
		rp = mergeRetryPolicies(defaults.RetryPolicy, rp)
	}
	if converted := convertRetryPolicy(rp); converted != nil {
		opts.RetryPolicy = converted
	}
	return opts
}

func mergeRetryPolicies(base, override durable.RetryPolicy) durable.RetryPolicy {
	result := base
	if override.MaxAttempts != 0 {
		result.MaxAttempts = override.MaxAttempts
	}
	if override.InitialInterval != 0 {
		result.InitialInterval = override.InitialInterval
	}
	if override.BackoffCoefficient != 0 {
		result.BackoffCoefficient = override.BackoffCoefficient
	}
	return result
}

func (w *temporalWorkflowContext) ExecuteActivity(ctx context.Context, req durable.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *temporalWorkflowContext) ExecuteActivityAsync(_ context.Context, req durable.ActivityRequest) (durable.Future, error) {
	actx := workflow.WithActivityOptions(w.ctx, w.activityOptions(req))
	fut := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return &temporalFuture{future: fut, ctx: w.ctx}, nil
}

func (w *temporalWorkflowContext) SignalChannel(name string) durable.SignalChannel {
	ch := workflow.GetSignalChannel(w.ctx, name)
	return &temporalReceiver{ctx: w.ctx, ch: ch}
}

type temporalFuture struct {
	future workflow.Future
	ctx    workflow.Context
}

func (f *temporalFuture) Get(_ context.Context, result any) error {
	return normalizeTemporalError(f.future.Get(f.ctx, result))
}

func (f *temporalFuture) IsReady() bool {
	return f.future.IsReady()
}

type temporalReceiver struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

func (r *temporalReceiver) Receive(_ context.Context, dest any) error {
	r.ch.Receive(r.ctx, dest)
	return nil
}

func (r *temporalReceiver) ReceiveAsync(dest any) bool {
	return r.ch.ReceiveAsync(dest)
}
