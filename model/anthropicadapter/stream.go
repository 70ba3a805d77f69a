package anthropicadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/fiberloom/engine/model"
)

// chunk kinds are internal to this adapter: Stream produces them, and
// ProcessStream (via foldChunks) is their only consumer. content_delta,
// tool_call and error reuse stream package kind names so the two event
// contracts stay recognizable side by side; usage and stop have no stream
// package counterpart.
const (
	chunkContentDelta = "content_delta"
	chunkToolCall     = "tool_call"
	chunkUsage        = "usage"
	chunkStop         = "stop"
	chunkError        = "error"
)

type toolCallChunk struct {
	ID    string
	Name  string
	Input []byte
}

// newStreamer adapts an Anthropic Messages SSE stream into a channel of
// model.Chunks, running the read loop on its own goroutine.
func newStreamer(ctx context.Context, sse *ssestream.Stream[sdk.MessageStreamEventUnion]) <-chan model.Chunk {
	chunks := make(chan model.Chunk, 32)
	go runStream(ctx, sse, chunks)
	return chunks
}

func runStream(ctx context.Context, sse *ssestream.Stream[sdk.MessageStreamEventUnion], chunks chan<- model.Chunk) {
	defer close(chunks)
	defer sse.Close()

	proc := newChunkProcessor()
	emit := func(c model.Chunk) bool {
		select {
		case <-ctx.Done():
			return false
		case chunks <- c:
			return true
		}
	}

	for sse.Next() {
		if ctx.Err() != nil {
			return
		}
		for _, c := range proc.handle(sse.Current()) {
			if !emit(c) {
				return
			}
		}
	}
	if err := sse.Err(); err != nil {
		emit(model.Chunk{Kind: chunkError, Data: err.Error()})
	}
}

// chunkProcessor converts Anthropic streaming events into model.Chunks,
// buffering partial tool_use JSON per content-block index until the block
// closes.
type chunkProcessor struct {
	toolBlocks map[int64]*toolBuffer
	stopReason string
}

func newChunkProcessor() *chunkProcessor {
	return &chunkProcessor{toolBlocks: make(map[int64]*toolBuffer)}
}

type toolBuffer struct {
	id        string
	name      string
	fragments strings.Builder
}

func (p *chunkProcessor) handle(event sdk.MessageStreamEventUnion) []model.Chunk {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.toolBlocks = make(map[int64]*toolBuffer)
		p.stopReason = ""
		return nil
	case sdk.ContentBlockStartEvent:
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			p.toolBlocks[ev.Index] = &toolBuffer{id: toolUse.ID, name: toolUse.Name}
		}
		return nil
	case sdk.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			return []model.Chunk{{Kind: chunkContentDelta, Data: textDeltaChunk{Index: int(ev.Index), Text: delta.Text}}}
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return nil
			}
			if tb := p.toolBlocks[ev.Index]; tb != nil {
				tb.fragments.WriteString(delta.PartialJSON)
			}
			return nil
		}
		return nil
	case sdk.ContentBlockStopEvent:
		tb, ok := p.toolBlocks[ev.Index]
		if !ok {
			return nil
		}
		delete(p.toolBlocks, ev.Index)
		input := tb.fragments.String()
		if strings.TrimSpace(input) == "" {
			input = "{}"
		}
		return []model.Chunk{{Kind: chunkToolCall, Data: toolCallChunk{ID: tb.id, Name: tb.name, Input: []byte(input)}}}
	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		usage := model.TokenUsage{
			InputTokens:      int(ev.Usage.InputTokens),
			OutputTokens:     int(ev.Usage.OutputTokens),
			CacheReadTokens:  int(ev.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(ev.Usage.CacheCreationInputTokens),
		}
		return []model.Chunk{{Kind: chunkUsage, Data: usage}}
	case sdk.MessageStopEvent:
		return []model.Chunk{{Kind: chunkStop, Data: p.stopReason}}
	default:
		return nil
	}
}

type textDeltaChunk struct {
	Index int
	Text  string
}

// streamResult accumulates a ProcessStream pass into the same shape
// Generate's sdk.Message would have produced, so ToEngineState's contract
// (one EngineResponse-shaping function per raw output type) holds for both
// call styles.
type streamResult struct {
	text       strings.Builder
	toolCalls  []model.ToolCall
	usage      *model.TokenUsage
	stopReason string
}

func (r *streamResult) toEngineResponse() model.EngineResponse {
	var resp model.EngineResponse
	if r.text.Len() > 0 {
		resp.NewTimelineEntries = append(resp.NewTimelineEntries, model.Message{
			Role:    model.RoleAssistant,
			Content: []model.Block{model.Text(r.text.String())},
		})
	}
	resp.ToolCalls = r.toolCalls
	resp.Usage = r.usage
	resp.ShouldStop = len(resp.ToolCalls) == 0
	resp.StopReason = &model.StopReason{Reason: r.stopReason}
	return resp
}

func foldChunks(chunks <-chan model.Chunk) (*streamResult, error) {
	result := &streamResult{}
	for c := range chunks {
		switch c.Kind {
		case chunkContentDelta:
			d, ok := c.Data.(textDeltaChunk)
			if !ok {
				return nil, errors.New("anthropicadapter: malformed content_delta chunk")
			}
			result.text.WriteString(d.Text)
		case chunkToolCall:
			tc, ok := c.Data.(toolCallChunk)
			if !ok {
				return nil, errors.New("anthropicadapter: malformed tool_call chunk")
			}
			result.toolCalls = append(result.toolCalls, model.ToolCall{
				ID:    tc.ID,
				Name:  tc.Name,
				Input: decodeToolInput(tc.Input),
			})
		case chunkUsage:
			u, ok := c.Data.(model.TokenUsage)
			if !ok {
				return nil, errors.New("anthropicadapter: malformed usage chunk")
			}
			usage := u
			result.usage = &usage
		case chunkStop:
			reason, _ := c.Data.(string)
			result.stopReason = reason
		case chunkError:
			msg, _ := c.Data.(string)
			return nil, fmt.Errorf("anthropicadapter: stream: %s", msg)
		}
	}
	return result, nil
}

func decodeToolInput(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}
	}
	return v
}
