// Package openaiadapter implements model.Adapter on top of the OpenAI Chat
// Completions API via github.com/openai/openai-go. It mirrors
// model/anthropicadapter's shape: FromEngineState builds a provider request,
// Generate issues it, and ToEngineState folds the response back into an
// EngineResponse.
package openaiadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/fiberloom/engine/errtax"
	"github.com/fiberloom/engine/model"
)

func init() {
	errtax.Register(func(err error) (errtax.Category, bool) {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
			return errtax.RateLimit, true
		}
		return "", false
	})
}

// ChatClient is the subset of the OpenAI client used by the adapter.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// Options configures model selection and generation defaults.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Adapter implements model.Adapter for OpenAI Chat Completions.
type Adapter struct {
	chat ChatClient
	opts Options
}

// New builds an Adapter from a ChatClient (typically &client.Chat.Completions).
func New(chat ChatClient, opts Options) (*Adapter, error) {
	if chat == nil {
		return nil, errors.New("openaiadapter: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openaiadapter: default model is required")
	}
	return &Adapter{chat: chat, opts: opts}, nil
}

// NewFromAPIKey builds an Adapter using the SDK's default HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("openaiadapter: api key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Chat.Completions, opts)
}

func (a *Adapter) Metadata() model.Metadata {
	return model.Metadata{
		ID:           a.opts.DefaultModel,
		Provider:     "openai",
		Capabilities: model.Capabilities{Streaming: false, MessageTransformPolicy: "native"},
	}
}

func (a *Adapter) FromEngineState(_ context.Context, formatted model.FormattedInput) (any, error) {
	msgs, err := encodeTimeline(formatted.SystemMessage, formatted.Timeline)
	if err != nil {
		return nil, err
	}
	maxTokens := a.opts.MaxTokens
	if formatted.Options.MaxTokens != nil && *formatted.Options.MaxTokens > 0 {
		maxTokens = *formatted.Options.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.opts.DefaultModel),
		Messages: msgs,
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	temp := a.opts.Temperature
	if formatted.Options.Temperature != nil {
		temp = *formatted.Options.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}
	if tools, err := encodeTools(formatted.Tools); err != nil {
		return nil, err
	} else if len(tools) > 0 {
		params.Tools = tools
	}
	return &params, nil
}

func (a *Adapter) Generate(ctx context.Context, modelInput any) (any, error) {
	params, ok := modelInput.(*openai.ChatCompletionNewParams)
	if !ok {
		return nil, fmt.Errorf("openaiadapter: unexpected model input type %T", modelInput)
	}
	resp, err := a.chat.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("openaiadapter: chat completion: %w", err)
	}
	return resp, nil
}

// Stream is unsupported by this adapter; Metadata().Capabilities.Streaming
// is false so callers should never invoke it.
func (a *Adapter) Stream(context.Context, any) (<-chan model.Chunk, error) {
	return nil, errors.New("openaiadapter: streaming not supported, use Generate")
}

func (a *Adapter) ProcessStream(context.Context, <-chan model.Chunk) (any, error) {
	return nil, errors.New("openaiadapter: streaming not supported")
}

func (a *Adapter) ToEngineState(_ context.Context, modelOutput any) (model.EngineResponse, error) {
	resp, ok := modelOutput.(*openai.ChatCompletion)
	if !ok {
		return model.EngineResponse{}, fmt.Errorf("openaiadapter: unexpected model output type %T", modelOutput)
	}
	if len(resp.Choices) == 0 {
		return model.EngineResponse{}, errors.New("openaiadapter: response has no choices")
	}
	choice := resp.Choices[0]

	var blocks []model.Block
	if choice.Message.Content != "" {
		blocks = append(blocks, model.Text(choice.Message.Content))
	}

	var resp2 model.EngineResponse
	if len(blocks) > 0 {
		resp2.NewTimelineEntries = append(resp2.NewTimelineEntries, model.Message{
			Role:    model.RoleAssistant,
			Content: blocks,
		})
	}
	for _, call := range choice.Message.ToolCalls {
		resp2.ToolCalls = append(resp2.ToolCalls, model.ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: parseArguments(call.Function.Arguments),
		})
	}
	resp2.Usage = &model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	resp2.ShouldStop = len(resp2.ToolCalls) == 0
	resp2.StopReason = &model.StopReason{Reason: string(choice.FinishReason)}
	return resp2, nil
}

func encodeTimeline(system *model.Message, msgs []model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != nil {
		if text := concatText(system.Content); text != "" {
			out = append(out, openai.SystemMessage(text))
		}
	}
	for _, m := range msgs {
		text := concatText(m.Content)
		if text == "" {
			continue
		}
		switch m.Role {
		case model.RoleUser:
			out = append(out, openai.UserMessage(text))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		case model.RoleTool:
			for _, b := range m.Content {
				if b.Type == model.BlockToolResult {
					out = append(out, openai.ToolMessage(toolResultText(b), b.ToolResultFor))
				}
			}
		default:
			return nil, fmt.Errorf("openaiadapter: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openaiadapter: at least one message is required")
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

func encodeTools(defs []model.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		params, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("openaiadapter: marshal tool %s schema: %w", def.Name, err)
		}
		var schema map[string]any
		if err := json.Unmarshal(params, &schema); err != nil {
			return nil, fmt.Errorf("openaiadapter: tool %s schema: %w", def.Name, err)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  schema,
			},
		})
	}
	return out, nil
}

func parseArguments(raw string) any {
	if raw == "" {
		return nil
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return map[string]any{"raw": raw}
	}
	return payload
}
