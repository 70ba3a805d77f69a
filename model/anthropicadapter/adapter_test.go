package anthropicadapter_test

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/model"
	"github.com/fiberloom/engine/model/anthropicadapter"
)

type fakeMessages struct {
	resp   *sdk.Message
	err    error
	last   sdk.MessageNewParams
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (f *fakeMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.last = body
	return f.resp, f.err
}

func (f *fakeMessages) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	f.last = body
	return f.stream
}

func TestNew_RequiresClientAndModel(t *testing.T) {
	_, err := anthropicadapter.New(nil, anthropicadapter.Options{DefaultModel: "claude-x"})
	require.Error(t, err)

	_, err = anthropicadapter.New(&fakeMessages{}, anthropicadapter.Options{})
	require.Error(t, err)
}

func TestFromEngineState_BuildsRequestWithSystemAndTemperatureOverride(t *testing.T) {
	fake := &fakeMessages{}
	a, err := anthropicadapter.New(fake, anthropicadapter.Options{
		DefaultModel: "claude-sonnet",
		MaxTokens:    512,
		Temperature:  0.2,
	})
	require.NoError(t, err)

	override := 0.9
	formatted := model.FormattedInput{
		SystemMessage: &model.Message{Content: []model.Block{model.Text("be terse")}},
		Timeline: []model.Message{
			{Role: model.RoleUser, Content: []model.Block{model.Text("hi")}},
		},
		Options: model.Options{Temperature: &override},
	}

	req, err := a.FromEngineState(context.Background(), formatted)
	require.NoError(t, err)

	params, ok := req.(*sdk.MessageNewParams)
	require.True(t, ok)
	assert.Equal(t, int64(512), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "be terse", params.System[0].Text)
}

func TestGenerate_RejectsWrongInputType(t *testing.T) {
	fake := &fakeMessages{}
	a, err := anthropicadapter.New(fake, anthropicadapter.Options{DefaultModel: "claude-sonnet", MaxTokens: 100})
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), "not a params struct")
	require.Error(t, err)
}

func TestToEngineState_TranslatesTextAndToolUseBlocks(t *testing.T) {
	a, err := anthropicadapter.New(&fakeMessages{}, anthropicadapter.Options{DefaultModel: "claude-sonnet", MaxTokens: 100})
	require.NoError(t, err)

	msg := &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "the answer is 42"},
			{Type: "tool_use", ID: "tu_1", Name: "lookup", Input: []byte(`{"q":"life"}`)},
		},
		StopReason: sdk.StopReasonToolUse,
	}

	resp, err := a.ToEngineState(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, resp.NewTimelineEntries, 1)
	assert.Equal(t, model.RoleAssistant, resp.NewTimelineEntries[0].Role)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Name)
	assert.False(t, resp.ShouldStop, "a response with pending tool calls must not stop the tick")
}

func TestMetadata_AdvertisesStreaming(t *testing.T) {
	a, err := anthropicadapter.New(&fakeMessages{}, anthropicadapter.Options{DefaultModel: "claude-sonnet", MaxTokens: 100})
	require.NoError(t, err)
	assert.True(t, a.Metadata().Capabilities.Streaming)
}

func TestStream_RejectsWrongInputType(t *testing.T) {
	a, err := anthropicadapter.New(&fakeMessages{}, anthropicadapter.Options{DefaultModel: "claude-sonnet", MaxTokens: 100})
	require.NoError(t, err)

	_, err = a.Stream(context.Background(), "not a params struct")
	require.Error(t, err)
}

func TestStream_ProcessStream_AccumulatesTextAndToolCall(t *testing.T) {
	dec := &testDecoder{events: []ssestream.Event{
		{Type: "content_block_delta", Data: mustMarshal(t, map[string]any{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]any{"type": "text_delta", "text": "hello"},
		})},
		{Type: "content_block_start", Data: mustMarshal(t, map[string]any{
			"type": "content_block_start", "index": 1,
			"content_block": map[string]any{"type": "tool_use", "id": "t1", "name": "lookup"},
		})},
		{Type: "content_block_delta", Data: mustMarshal(t, map[string]any{
			"type": "content_block_delta", "index": 1,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": `{"q":1}`},
		})},
		{Type: "content_block_stop", Data: mustMarshal(t, map[string]any{
			"type": "content_block_stop", "index": 1,
		})},
		{Type: "message_delta", Data: mustMarshal(t, map[string]any{
			"type": "message_delta",
			"delta": map[string]any{"stop_reason": "tool_use"},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
		})},
		{Type: "message_stop", Data: mustMarshal(t, map[string]any{"type": "message_stop"})},
	}}
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)

	fake := &fakeMessages{stream: stream}
	a, err := anthropicadapter.New(fake, anthropicadapter.Options{DefaultModel: "claude-sonnet", MaxTokens: 100})
	require.NoError(t, err)

	chunks, err := a.Stream(context.Background(), &sdk.MessageNewParams{})
	require.NoError(t, err)

	raw, err := a.ProcessStream(context.Background(), chunks)
	require.NoError(t, err)

	resp, err := a.ToEngineState(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, resp.NewTimelineEntries, 1)
	assert.Equal(t, model.RoleAssistant, resp.NewTimelineEntries[0].Role)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Name)
	assert.False(t, resp.ShouldStop)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, "tool_use", resp.StopReason.Reason)
}

// testDecoder feeds a fixed sequence of events to ssestream.Stream, mirroring
// the anthropic-sdk-go event-stream decoder contract.
type testDecoder struct {
	events []ssestream.Event
	i      int
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return nil }

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
