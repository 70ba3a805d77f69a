package tick_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/exec"
	"github.com/fiberloom/engine/fiber"
	"github.com/fiberloom/engine/model"
	"github.com/fiberloom/engine/telemetry"
	"github.com/fiberloom/engine/tick"
)

type fakeAdapter struct {
	calls      int
	resp       model.EngineResponse
	shouldStop bool
}

func (f *fakeAdapter) Metadata() model.Metadata { return model.Metadata{ID: "fake"} }

func (f *fakeAdapter) FromEngineState(context.Context, model.FormattedInput) (any, error) {
	return "request", nil
}

func (f *fakeAdapter) ToEngineState(context.Context, any) (model.EngineResponse, error) {
	r := f.resp
	r.ShouldStop = f.shouldStop
	return r, nil
}

func (f *fakeAdapter) Generate(context.Context, any) (any, error) {
	f.calls++
	return "response", nil
}

func (f *fakeAdapter) Stream(context.Context, any) (<-chan model.Chunk, error) {
	return nil, errors.New("not supported")
}

func (f *fakeAdapter) ProcessStream(context.Context, <-chan model.Chunk) (any, error) {
	return nil, errors.New("not supported")
}

func noopComponent(rc *fiber.RenderContext, props any) fiber.Element { return fiber.Element{} }

func newSession(t *testing.T, root fiber.Element) (*tick.Session, *com.COM) {
	t.Helper()
	c := com.New(telemetry.Noop())
	h := exec.NewRoot(c)
	g := exec.NewGraph(h)
	s := tick.NewSession(c, h, g, root, telemetry.Noop())
	return s, c
}

func TestTick_ModelShouldStopResolvesCompletedWithStopReason(t *testing.T) {
	s, _ := newSession(t, fiber.Com(noopComponent, "", nil))
	adapter := &fakeAdapter{shouldStop: true, resp: model.EngineResponse{StopReason: &model.StopReason{Reason: "done"}}}

	status, reason, err := s.Tick(context.Background(), adapter, nil)
	require.NoError(t, err)
	assert.Equal(t, com.StatusCompleted, status)
	assert.Equal(t, "done", reason)
	assert.Equal(t, 1, adapter.calls)
}

func TestTick_HighPriorityControlRequestWinsOverModelContinue(t *testing.T) {
	component := func(rc *fiber.RenderContext, props any) fiber.Element {
		rc.COM().RequestStop(com.ControlRequest{OwnerID: "guard", Priority: 100, TerminationReason: "policy violation"})
		return fiber.Element{}
	}
	s, _ := newSession(t, fiber.Com(component, "", nil))
	adapter := &fakeAdapter{shouldStop: false}

	status, reason, err := s.Tick(context.Background(), adapter, nil)
	require.NoError(t, err)
	assert.Equal(t, com.StatusCompleted, status)
	assert.Equal(t, "policy violation", reason)
}

func TestTick_AbortedBeforeCompileSkipsTheModelCall(t *testing.T) {
	s, c := newSession(t, fiber.Com(noopComponent, "", nil))
	c.Abort("external cancel")
	adapter := &fakeAdapter{}

	status, reason, err := s.Tick(context.Background(), adapter, nil)
	require.NoError(t, err)
	assert.Equal(t, com.StatusAborted, status)
	assert.Equal(t, "external cancel", reason)
	assert.Equal(t, 0, adapter.calls, "an aborted execution must never reach the model call")
}

func TestTick_UnknownToolNameProducesAnErrorResultWithoutFailingTheTick(t *testing.T) {
	s, _ := newSession(t, fiber.Com(noopComponent, "", nil))
	adapter := &fakeAdapter{
		shouldStop: true,
		resp: model.EngineResponse{
			ToolCalls: []model.ToolCall{{ID: "tc1", Name: "not_registered"}},
		},
	}

	status, _, err := s.Tick(context.Background(), adapter, nil)
	require.NoError(t, err)
	assert.Equal(t, com.StatusCompleted, status)
}

func TestExecute_StopsAtMaxTicksEvenWhenModelWouldContinue(t *testing.T) {
	s, _ := newSession(t, fiber.Com(noopComponent, "", nil))
	s.MaxTicks = 2
	adapter := &fakeAdapter{shouldStop: false}

	status, reason, err := s.Execute(context.Background(), adapter, []model.Block{model.Text("go")})
	require.NoError(t, err)
	assert.Equal(t, com.StatusCompleted, status)
	assert.Equal(t, "max ticks reached", reason)
	assert.Equal(t, 2, adapter.calls)
}
