// Package anthropicadapter implements model.Adapter on top of the Anthropic
// Claude Messages API via github.com/anthropics/anthropic-sdk-go. It
// translates the engine's FormattedInput into a sdk.MessageNewParams
// request and the raw SDK response back into a model.EngineResponse.
package anthropicadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/fiberloom/engine/errtax"
	"github.com/fiberloom/engine/model"
)

func init() {
	errtax.Register(func(err error) (errtax.Category, bool) {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
			return errtax.RateLimit, true
		}
		return "", false
	})
}

// MessagesClient is the subset of *sdk.MessageService the adapter depends
// on, so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures model selection and default generation parameters.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Adapter implements model.Adapter for Anthropic Claude.
type Adapter struct {
	msg  MessagesClient
	opts Options
}

// New constructs an Adapter from an Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Adapter, error) {
	if msg == nil {
		return nil, errors.New("anthropicadapter: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropicadapter: default model is required")
	}
	return &Adapter{msg: msg, opts: opts}, nil
}

// NewFromAPIKey builds an Adapter using the Anthropic SDK's default HTTP
// client configured from apiKey.
func NewFromAPIKey(apiKey string, opts Options) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropicadapter: api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, opts)
}

func (a *Adapter) Metadata() model.Metadata {
	return model.Metadata{
		ID:           a.opts.DefaultModel,
		Provider:     "anthropic",
		Capabilities: model.Capabilities{Streaming: true, MessageTransformPolicy: "native"},
	}
}

func (a *Adapter) FromEngineState(_ context.Context, formatted model.FormattedInput) (any, error) {
	msgs, err := encodeTimeline(formatted.Timeline)
	if err != nil {
		return nil, err
	}
	maxTokens := a.opts.MaxTokens
	if formatted.Options.MaxTokens != nil && *formatted.Options.MaxTokens > 0 {
		maxTokens = *formatted.Options.MaxTokens
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropicadapter: max_tokens must be positive")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.opts.DefaultModel),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if formatted.SystemMessage != nil {
		if text := concatText(formatted.SystemMessage.Content); text != "" {
			params.System = []sdk.TextBlockParam{{Text: text}}
		}
	}
	temp := a.opts.Temperature
	if formatted.Options.Temperature != nil {
		temp = *formatted.Options.Temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if tools, err := encodeTools(formatted.Tools); err != nil {
		return nil, err
	} else if len(tools) > 0 {
		params.Tools = tools
	}
	return &params, nil
}

func (a *Adapter) Generate(ctx context.Context, modelInput any) (any, error) {
	params, ok := modelInput.(*sdk.MessageNewParams)
	if !ok {
		return nil, fmt.Errorf("anthropicadapter: unexpected model input type %T", modelInput)
	}
	msg, err := a.msg.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("anthropicadapter: messages.new: %w", err)
	}
	return msg, nil
}

// Stream invokes Messages.NewStreaming and adapts incremental SSE events
// into model.Chunks; see stream.go for the event processor.
func (a *Adapter) Stream(ctx context.Context, modelInput any) (<-chan model.Chunk, error) {
	params, ok := modelInput.(*sdk.MessageNewParams)
	if !ok {
		return nil, fmt.Errorf("anthropicadapter: unexpected model input type %T", modelInput)
	}
	sse := a.msg.NewStreaming(ctx, *params)
	if sse == nil {
		return nil, errors.New("anthropicadapter: streaming client returned a nil stream")
	}
	return newStreamer(ctx, sse), nil
}

// ProcessStream folds a channel of chunks produced by Stream into the same
// shape ToEngineState expects from Generate.
func (a *Adapter) ProcessStream(_ context.Context, chunks <-chan model.Chunk) (any, error) {
	return foldChunks(chunks)
}

func (a *Adapter) ToEngineState(_ context.Context, modelOutput any) (model.EngineResponse, error) {
	switch v := modelOutput.(type) {
	case *sdk.Message:
		return translateMessage(v)
	case *streamResult:
		return v.toEngineResponse(), nil
	default:
		return model.EngineResponse{}, fmt.Errorf("anthropicadapter: unexpected model output type %T", modelOutput)
	}
}

func translateMessage(msg *sdk.Message) (model.EngineResponse, error) {
	var resp model.EngineResponse
	var blocks []model.Block
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				blocks = append(blocks, model.Text(block.Text))
			}
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	if len(blocks) > 0 {
		resp.NewTimelineEntries = append(resp.NewTimelineEntries, model.Message{
			Role:    model.RoleAssistant,
			Content: blocks,
		})
	}

	if u := msg.Usage; u.InputTokens != 0 || u.OutputTokens != 0 {
		resp.Usage = &model.TokenUsage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}
	}
	resp.ShouldStop = len(resp.ToolCalls) == 0
	resp.StopReason = &model.StopReason{Reason: string(msg.StopReason)}
	return resp, nil
}

func encodeTimeline(msgs []model.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case model.BlockText:
				if b.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(b.Text))
				}
			case model.BlockToolUse:
				blocks = append(blocks, sdk.NewToolUseBlock(b.ToolUseID, b.ToolInput, b.ToolName))
			case model.BlockToolResult:
				blocks = append(blocks, sdk.NewToolResultBlock(b.ToolResultFor, toolResultText(b), b.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case model.RoleUser, model.RoleTool:
			out = append(out, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropicadapter: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropicadapter: at least one user/assistant message is required")
	}
	return out, nil
}

func toolResultText(b model.Block) string {
	blocks, _ := b.Metadata["content"].([]model.Block)
	return concatText(blocks)
}

func concatText(blocks []model.Block) string {
	s := ""
	for _, b := range blocks {
		if b.Type == model.BlockText {
			if s != "" {
				s += "\n"
			}
			s += b.Text
		}
	}
	return s
}

func encodeTools(defs []model.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := toInputSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropicadapter: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func toInputSchema(schema map[string]any) (sdk.ToolInputSchemaParam, error) {
	if schema == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}
