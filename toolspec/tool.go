// Package toolspec defines the Tool contract external tool providers
// implement (§6 of the engine spec) and validates tool call arguments
// against each tool's declared JSON-Schema input shape.
package toolspec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fiberloom/engine/model"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ExecutionType says who is responsible for actually running a tool call.
type ExecutionType string

const (
	// Server tools are executed by the engine's own process.
	Server ExecutionType = "SERVER"
	// Client tools are executed by an external caller (e.g. a UI) and the
	// engine awaits the result via coordinate.ClientToolCoordinator.
	Client ExecutionType = "CLIENT"
	// Provider tools are already executed by the model provider; the
	// engine only ingests the result.
	Provider ExecutionType = "PROVIDER"
	// MCP tools are forwarded to an external Model Context Protocol
	// transport (out of scope; see §1 of the engine spec).
	MCP ExecutionType = "MCP"
)

// RequiresConfirmation is either a static flag or a per-input predicate.
// Exactly one of Always/Predicate should be meaningfully set; if Predicate
// is nil, Always is used.
type RequiresConfirmation struct {
	Always    bool
	Predicate func(input any) bool
}

// Required reports whether the given input requires user confirmation.
func (r RequiresConfirmation) Required(input any) bool {
	if r.Predicate != nil {
		return r.Predicate(input)
	}
	return r.Always
}

// Metadata describes a tool for both execution dispatch and provider-facing
// advertisement.
type Metadata struct {
	Name                 string
	Description          string
	InputSchema          map[string]any
	Type                 ExecutionType
	RequiresConfirmation RequiresConfirmation
	ProviderOptions      map[string]any
}

// Tool is an executable capability the engine can offer to a model.
type Tool struct {
	Meta Metadata
	Run  func(ctx context.Context, input any) ([]model.Block, error)

	schema *jsonschema.Schema
}

// Definition returns the provider-facing shape of this tool (name,
// description, JSON-Schema, execution type), suitable for inclusion in
// model.FormattedInput.Tools.
func (t *Tool) Definition() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        t.Meta.Name,
		Description: t.Meta.Description,
		InputSchema: t.Meta.InputSchema,
		Type:        string(t.Meta.Type),
	}
}

// Compile parses the tool's declared InputSchema once so subsequent calls
// to Validate are cheap. Safe to call multiple times; idempotent.
func (t *Tool) Compile() error {
	if t.schema != nil || len(t.Meta.InputSchema) == 0 {
		return nil
	}
	raw, err := json.Marshal(t.Meta.InputSchema)
	if err != nil {
		return fmt.Errorf("toolspec: marshal schema for %q: %w", t.Meta.Name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("toolspec: unmarshal schema for %q: %w", t.Meta.Name, err)
	}
	c := jsonschema.NewCompiler()
	resourceURI := "mem://tool-schema/" + t.Meta.Name
	if err := c.AddResource(resourceURI, doc); err != nil {
		return fmt.Errorf("toolspec: add schema resource for %q: %w", t.Meta.Name, err)
	}
	schema, err := c.Compile(resourceURI)
	if err != nil {
		return fmt.Errorf("toolspec: compile schema for %q: %w", t.Meta.Name, err)
	}
	t.schema = schema
	return nil
}

// Validate checks input against the tool's compiled JSON-Schema. A tool
// with no declared schema accepts any input. Callers should call Compile
// once at registration time; Validate will compile lazily if needed.
func (t *Tool) Validate(input any) error {
	if err := t.Compile(); err != nil {
		return err
	}
	if t.schema == nil {
		return nil
	}
	// jsonschema validates decoded JSON values (map[string]any, []any,
	// string, float64, bool, nil), so round-trip arbitrary Go input through
	// JSON to normalize it the same way a wire-decoded tool call would be.
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("toolspec: marshal input for %q: %w", t.Meta.Name, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("toolspec: decode input for %q: %w", t.Meta.Name, err)
	}
	if err := t.schema.Validate(decoded); err != nil {
		return fmt.Errorf("toolspec: %q: %w", t.Meta.Name, err)
	}
	return nil
}
