package stream_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/stream"
)

// recordingSink is a minimal stream.Sink that records every event it
// receives, used to assert ordering and payload shape contracts.
type recordingSink struct {
	events []stream.Event
	closed bool
}

func (s *recordingSink) Send(_ context.Context, event stream.Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close(_ context.Context) error {
	s.closed = true
	return nil
}

func TestEvent_TypeReturnsItsKind(t *testing.T) {
	ev := stream.Event{Kind: stream.KindToolCall, Data: stream.ToolCallData{ToolName: "search"}}
	assert.Equal(t, stream.KindToolCall, ev.Type())
}

func TestSink_RecordsEventsInSendOrder(t *testing.T) {
	var sink stream.Sink = &recordingSink{}
	ctx := context.Background()

	require.NoError(t, sink.Send(ctx, stream.Event{Kind: stream.KindTickStart, Data: stream.TickStartData{TickNumber: 1}}))
	require.NoError(t, sink.Send(ctx, stream.Event{Kind: stream.KindContentDelta, Data: stream.ContentDeltaData{Text: "hi"}}))
	require.NoError(t, sink.Send(ctx, stream.Event{Kind: stream.KindTickEnd, Data: stream.TickEndData{TickNumber: 1}}))
	require.NoError(t, sink.Close(ctx))

	rec := sink.(*recordingSink)
	require.Len(t, rec.events, 3)
	assert.Equal(t, stream.KindTickStart, rec.events[0].Kind)
	assert.Equal(t, stream.KindContentDelta, rec.events[1].Kind)
	assert.Equal(t, stream.KindTickEnd, rec.events[2].Kind)
	assert.True(t, rec.closed)
}

func TestKind_ConstantsAreStableWireNames(t *testing.T) {
	// External consumers match on these literal strings; a rename here is a
	// wire break, so pin the exact values.
	cases := map[stream.Kind]string{
		stream.KindExecutionStart:          "execution_start",
		stream.KindExecutionEnd:            "execution_end",
		stream.KindTickStart:               "tick_start",
		stream.KindTickEnd:                 "tick_end",
		stream.KindToolCall:                "tool_call",
		stream.KindToolResult:              "tool_result",
		stream.KindToolConfirmationRequired: "tool_confirmation_required",
		stream.KindToolConfirmationResult:   "tool_confirmation_result",
		stream.KindError:                    "error",
		stream.KindEngineError:              "engine_error",
	}
	for kind, want := range cases {
		assert.Equal(t, want, string(kind))
	}
}
