package toolspec

import (
	"context"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/model"
)

// ToEntry adapts a Tool into the com.ToolEntry shape COM.AddTool expects,
// validating input against the tool's schema before invoking Run.
func (t *Tool) ToEntry(ctx context.Context) com.ToolEntry {
	return com.ToolEntry{
		Name:       t.Meta.Name,
		Definition: t.Definition(),
		RequiresConfirmation: func(input any) bool {
			return t.Meta.RequiresConfirmation.Required(input)
		},
		Handler: func(input any) ([]model.Block, error) {
			if err := t.Validate(input); err != nil {
				return nil, err
			}
			return t.Run(ctx, input)
		},
	}
}
