// Package bedrockadapter implements model.Adapter on top of the AWS Bedrock
// Converse API via github.com/aws/aws-sdk-go-v2/service/bedrockruntime. It
// encodes the engine's timeline and tool definitions into a ConverseInput and
// translates the ConverseOutput back into a model.EngineResponse.
//
// Unlike the teacher's bedrock client, this adapter does not implement
// extended thinking, prompt-cache checkpoints, or ledger rehydration: none of
// those map onto a SPEC_FULL.md component (the engine's COM already owns
// transcript continuity, so a second ledger-rehydration path would fight the
// reconciler rather than serve it). Tool name sanitization is kept, since
// Bedrock's toolUseId/tool name charset constraints apply regardless.
package bedrockadapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/fiberloom/engine/errtax"
	"github.com/fiberloom/engine/model"
)

func init() {
	errtax.Register(func(err error) (errtax.Category, bool) {
		if isRateLimited(err) {
			return errtax.RateLimit, true
		}
		return "", false
	})
}

// RuntimeClient is the subset of *bedrockruntime.Client the adapter depends
// on, so tests can substitute a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures model selection and generation defaults.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float32
}

// Adapter implements model.Adapter for AWS Bedrock Converse.
type Adapter struct {
	runtime RuntimeClient
	opts    Options
}

// New constructs an Adapter from a Bedrock runtime client.
func New(runtime RuntimeClient, opts Options) (*Adapter, error) {
	if runtime == nil {
		return nil, errors.New("bedrockadapter: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrockadapter: default model is required")
	}
	return &Adapter{runtime: runtime, opts: opts}, nil
}

func (a *Adapter) Metadata() model.Metadata {
	return model.Metadata{
		ID:           a.opts.DefaultModel,
		Provider:     "bedrock",
		Capabilities: model.Capabilities{Streaming: false, MessageTransformPolicy: "native"},
	}
}

type convertedRequest struct {
	input    *bedrockruntime.ConverseInput
	nameMap  map[string]string // sanitized -> canonical
}

func (a *Adapter) FromEngineState(_ context.Context, formatted model.FormattedInput) (any, error) {
	canonToSan, sanToCanon, toolConfig, err := encodeTools(formatted.Tools)
	if err != nil {
		return nil, err
	}
	messages, system, err := encodeMessages(formatted.SystemMessage, formatted.Timeline, canonToSan)
	if err != nil {
		return nil, err
	}
	if toolConfig == nil && messagesHaveToolBlocks(formatted.Timeline) {
		return nil, errors.New("bedrockadapter: timeline contains tool blocks but no tools were provided")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(a.opts.DefaultModel),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolConfig != nil {
		input.ToolConfig = toolConfig
	}

	maxTokens := a.opts.MaxTokens
	if formatted.Options.MaxTokens != nil && *formatted.Options.MaxTokens > 0 {
		maxTokens = *formatted.Options.MaxTokens
	}
	temp := a.opts.Temperature
	if formatted.Options.Temperature != nil {
		temp = float32(*formatted.Options.Temperature)
	}
	var cfg brtypes.InferenceConfiguration
	if maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(maxTokens))
	}
	if temp > 0 {
		cfg.Temperature = aws.Float32(temp)
	}
	if cfg.MaxTokens != nil || cfg.Temperature != nil {
		input.InferenceConfig = &cfg
	}

	return &convertedRequest{input: input, nameMap: sanToCanon}, nil
}

func (a *Adapter) Generate(ctx context.Context, modelInput any) (any, error) {
	req, ok := modelInput.(*convertedRequest)
	if !ok {
		return nil, fmt.Errorf("bedrockadapter: unexpected model input type %T", modelInput)
	}
	out, err := a.runtime.Converse(ctx, req.input)
	if err != nil {
		return nil, fmt.Errorf("bedrockadapter: converse: %w", err)
	}
	return &convertedResponse{output: out, nameMap: req.nameMap}, nil
}

// Stream is unsupported by this adapter; Metadata().Capabilities.Streaming
// is false so callers should never invoke it.
func (a *Adapter) Stream(context.Context, any) (<-chan model.Chunk, error) {
	return nil, errors.New("bedrockadapter: streaming not supported, use Generate")
}

func (a *Adapter) ProcessStream(context.Context, <-chan model.Chunk) (any, error) {
	return nil, errors.New("bedrockadapter: streaming not supported")
}

type convertedResponse struct {
	output  *bedrockruntime.ConverseOutput
	nameMap map[string]string // sanitized -> canonical
}

func (a *Adapter) ToEngineState(_ context.Context, modelOutput any) (model.EngineResponse, error) {
	cr, ok := modelOutput.(*convertedResponse)
	if !ok {
		return model.EngineResponse{}, fmt.Errorf("bedrockadapter: unexpected model output type %T", modelOutput)
	}
	out := cr.output
	if out == nil {
		return model.EngineResponse{}, errors.New("bedrockadapter: response is nil")
	}

	var resp model.EngineResponse
	var blocks []model.Block
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				if v.Value != "" {
					blocks = append(blocks, model.Text(v.Value))
				}
			case *brtypes.ContentBlockMemberToolUse:
				name := ""
				if v.Value.Name != nil {
					canonical, ok := cr.nameMap[*v.Value.Name]
					if !ok {
						return model.EngineResponse{}, fmt.Errorf("bedrockadapter: tool name %q not in reverse map", *v.Value.Name)
					}
					name = canonical
				}
				var id string
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
					ID:    id,
					Name:  name,
					Input: decodeDocument(v.Value.Input),
				})
			}
		}
	}
	if len(blocks) > 0 {
		resp.NewTimelineEntries = append(resp.NewTimelineEntries, model.Message{
			Role:    model.RoleAssistant,
			Content: blocks,
		})
	}
	if u := out.Usage; u != nil {
		resp.Usage = &model.TokenUsage{
			InputTokens:      int(ptrValue(u.InputTokens)),
			OutputTokens:     int(ptrValue(u.OutputTokens)),
			CacheReadTokens:  int(ptrValue(u.CacheReadInputTokens)),
			CacheWriteTokens: int(ptrValue(u.CacheWriteInputTokens)),
		}
	}
	resp.ShouldStop = len(resp.ToolCalls) == 0
	resp.StopReason = &model.StopReason{Reason: string(out.StopReason)}
	return resp, nil
}

func encodeMessages(system *model.Message, msgs []model.Message, nameMap map[string]string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var sysBlocks []brtypes.SystemContentBlock
	if system != nil {
		if text := concatText(system.Content); text != "" {
			sysBlocks = append(sysBlocks, &brtypes.SystemContentBlockMemberText{Value: text})
		}
	}

	toolUseIDMap := make(map[string]string)
	nextID := 0
	toolUseIDFor := func(canonical string) string {
		if canonical == "" {
			return ""
		}
		if isProviderSafeID(canonical) {
			return canonical
		}
		if id, ok := toolUseIDMap[canonical]; ok {
			return id
		}
		nextID++
		id := fmt.Sprintf("t%d", nextID)
		toolUseIDMap[canonical] = id
		return id
	}

	conversation := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]brtypes.ContentBlock, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case model.BlockText:
				if b.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: b.Text})
				}
			case model.BlockToolUse:
				sanitized, ok := nameMap[b.ToolName]
				if !ok || sanitized == "" {
					return nil, nil, fmt.Errorf("bedrockadapter: tool_use references %q which is not in the current tool configuration", b.ToolName)
				}
				input, err := json.Marshal(b.ToolInput)
				if err != nil {
					return nil, nil, fmt.Errorf("bedrockadapter: marshal tool_use input: %w", err)
				}
				tb := brtypes.ToolUseBlock{
					Name:      aws.String(sanitized),
					ToolUseId: aws.String(toolUseIDFor(b.ToolUseID)),
					Input:     toDocument(input),
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: tb})
			case model.BlockToolResult:
				tr := brtypes.ToolResultBlock{
					ToolUseId: aws.String(toolUseIDFor(b.ToolResultFor)),
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: toolResultText(b)},
					},
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{Value: tr})
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == model.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrockadapter: at least one user/assistant message is required")
	}
	return conversation, sysBlocks, nil
}

func encodeTools(defs []model.ToolDefinition) (canonToSan, sanToCanon map[string]string, cfg *brtypes.ToolConfiguration, err error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	canonToSan = make(map[string]string, len(defs))
	sanToCanon = make(map[string]string, len(defs))
	toolList := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		sanitized := sanitizeToolName(def.Name)
		if prev, ok := sanToCanon[sanitized]; ok && prev != def.Name {
			return nil, nil, nil, fmt.Errorf("bedrockadapter: tool name %q sanitizes to %q which collides with %q", def.Name, sanitized, prev)
		}
		sanToCanon[sanitized] = def.Name
		canonToSan[def.Name] = sanitized
		schema, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bedrockadapter: marshal tool %q schema: %w", def.Name, err)
		}
		spec := brtypes.ToolSpecification{
			Name:        aws.String(sanitized),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(schema)},
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
	}
	if len(toolList) == 0 {
		return nil, nil, nil, nil
	}
	return canonToSan, sanToCanon, &brtypes.ToolConfiguration{Tools: toolList}, nil
}

// sanitizeToolName maps a canonical tool identifier to Bedrock's allowed
// charset [a-zA-Z0-9_-]+, truncating and suffixing with a stable hash when
// the result would exceed the documented 64-character limit.
func sanitizeToolName(in string) string {
	if in == "" {
		return ""
	}
	const maxLen = 64
	const hashLen = 8
	out := make([]rune, 0, len(in))
	changed := false
	for _, r := range in {
		if r == '.' {
			r = '_'
			changed = true
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
			changed = true
		}
	}
	_ = changed
	sanitized := string(out)
	if len(sanitized) <= maxLen {
		return sanitized
	}
	sum := sha256.Sum256([]byte(in))
	suffix := hex.EncodeToString(sum[:])[:hashLen]
	prefixLen := maxLen - (1 + hashLen)
	if prefixLen < 1 {
		prefixLen = 1
	}
	return sanitized[:prefixLen] + "_" + suffix
}

func isProviderSafeID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
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

func messagesHaveToolBlocks(msgs []model.Message) bool {
	for _, m := range msgs {
		for _, b := range m.Content {
			if b.Type == model.BlockToolUse || b.Type == model.BlockToolResult {
				return true
			}
		}
	}
	return false
}

func toDocument(raw []byte) document.Interface {
	if len(raw) == 0 {
		v := map[string]any{"type": "object"}
		return document.NewLazyDocument(&v)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		v := map[string]any{"type": "object"}
		return document.NewLazyDocument(&v)
	}
	return document.NewLazyDocument(&decoded)
}

func decodeDocument(doc document.Interface) any {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		var zero T
		return zero
	}
	return *ptr
}

// isRateLimited reports whether err represents a Bedrock throttling
// condition, matching on both the smithy API error code and a raw HTTP 429.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}
