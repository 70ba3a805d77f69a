// Package compile turns a rendered fiber tree plus the accumulated COM
// state into the structure handed to a model adapter: a consolidated
// system message, ordered timeline, tool definitions, and ephemeral
// content woven in at the right positions. It also implements the
// compile-stabilization fixed-point loop that re-renders until no
// component requests another pass (§4.3, §9).
package compile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/fiber"
	"github.com/fiberloom/engine/hooks"
	"github.com/fiberloom/engine/model"
)

// DefaultMaxIterations is the compile-stabilization loop's default
// iteration cap before a tick is forced stable (§9).
const DefaultMaxIterations = 10

// MaxIterationsCeiling is the hard upper bound a caller may configure
// (§9: "upper bound 50").
const MaxIterationsCeiling = 50

// Structure is the fully-resolved, formatted view of a COM ready to be
// converted into a model.FormattedInput.
type Structure struct {
	SystemMessage *model.Message
	Timeline      []com.TimelineEntry
	Tools         []model.ToolDefinition
	Metadata      map[string]any

	// Iterations is how many render+commit passes the stabilization loop
	// took to reach this structure.
	Iterations int
	// ForcedStable is true when the loop hit its iteration cap without a
	// component voluntarily stopping recompile requests (§9).
	ForcedStable bool
}

// Loop drives the compile-stabilization fixed point: render, commit, run
// commit and after-compile effects, and repeat while a recompile was
// requested, up to MaxIterations passes. A MaxIterations of 0 or less uses
// DefaultMaxIterations; values above MaxIterationsCeiling are capped to it.
type Loop struct {
	Reconciler *fiber.Reconciler
	Committer  *fiber.Committer
	Effects    *hooks.EffectRegistry
	COM        *com.COM

	MaxIterations int
}

// Run executes the fixed-point loop for one tick, rendering root on every
// pass, and returns the resulting Structure read back from COM.
func (l *Loop) Run(tick *com.TickState, root fiber.Element) (Structure, error) {
	max := l.MaxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}
	if max > MaxIterationsCeiling {
		max = MaxIterationsCeiling
	}

	var iterations int
	forced := false
	for i := 0; i < max; i++ {
		iterations = i + 1
		l.Effects.Reset()
		dirty := l.Reconciler.Render(tick, root)
		l.Committer.Commit(dirty)
		l.Effects.Run(hooks.PhaseCommit)
		l.Effects.Run(hooks.PhaseAfterCompile)

		requested, reasons := l.COM.TakeRecompileRequest()
		if !requested {
			break
		}
		if i == max-1 {
			forced = true
			_ = reasons
		}
	}

	structure, err := BuildStructure(l.COM)
	if err != nil {
		return Structure{}, err
	}
	structure.Iterations = iterations
	structure.ForcedStable = forced
	return structure, nil
}

// BuildStructure reads back COM's accumulated state into a Structure,
// applying the section-formatting and system-message consolidation rules
// of §4.3.
func BuildStructure(c *com.COM) (Structure, error) {
	sys := c.ConsolidatedSystemMessage()
	sections := c.Sections()
	sectionMsg, err := formatSections(sections)
	if err != nil {
		return Structure{}, fmt.Errorf("compile: format sections: %w", err)
	}
	if sectionMsg != nil {
		if sys == nil {
			sys = sectionMsg
		} else {
			sys.Content = append(sys.Content, sectionMsg.Content...)
		}
	}

	timeline := c.Timeline()
	timeline = weaveEphemeral(timeline, c.Ephemeral())

	tools := c.Tools()
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.Definition)
	}

	return Structure{
		SystemMessage: sys,
		Timeline:      timeline,
		Tools:         defs,
		Metadata:      c.Metadata(),
	}, nil
}

// formatSections renders each section and concatenates them, separated by
// blank lines, into a single system-message block. Formatted text is not
// cached on the sections. Sections are rendered in the stable order they
// were first registered.
func formatSections(sections []com.Section) (*model.Message, error) {
	if len(sections) == 0 {
		return nil, nil
	}
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		text := formatSectionContent(s)
		if text == "" {
			continue
		}
		if s.Title != "" {
			text = s.Title + "\n" + text
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return &model.Message{Role: model.RoleSystem, Content: []model.Block{model.Text(strings.Join(parts, "\n\n"))}}, nil
}

func formatSectionContent(s com.Section) string {
	switch v := s.Content.(type) {
	case string:
		return v
	case []model.Block:
		out := ""
		for i, b := range v {
			if i > 0 {
				out += "\n"
			}
			out += b.Text
		}
		return out
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// weaveEphemeral inserts ephemeral entries into the formatted timeline at
// their declared positions, sorted by Order within the same position.
// Ephemeral content never mutates the persistent timeline it's woven into.
func weaveEphemeral(timeline []com.TimelineEntry, ephemeral []com.EphemeralEntry) []com.TimelineEntry {
	if len(ephemeral) == 0 {
		return timeline
	}
	byPos := make(map[com.EphemeralPosition][]com.EphemeralEntry)
	for _, e := range ephemeral {
		byPos[e.Position] = append(byPos[e.Position], e)
	}
	for pos := range byPos {
		sort.SliceStable(byPos[pos], func(i, j int) bool {
			return byPos[pos][i].Order < byPos[pos][j].Order
		})
	}

	toEntries := func(es []com.EphemeralEntry) []com.TimelineEntry {
		out := make([]com.TimelineEntry, 0, len(es))
		for _, e := range es {
			out = append(out, com.TimelineEntry{
				Kind:         "message",
				Message:      model.Message{Role: model.RoleEvent, Content: e.Content},
				ID:           e.ID,
				Tags:         e.Tags,
				Preformatted: true,
			})
		}
		return out
	}

	var out []com.TimelineEntry
	out = append(out, toEntries(byPos[com.PositionStart])...)
	out = append(out, toEntries(byPos[com.PositionAfterSystem])...)
	for i, entry := range timeline {
		if i == len(timeline)-1 {
			out = append(out, toEntries(byPos[com.PositionBeforeUser])...)
		}
		out = append(out, entry)
	}
	if len(timeline) == 0 {
		out = append(out, toEntries(byPos[com.PositionBeforeUser])...)
	}
	out = append(out, toEntries(byPos[com.PositionFlow])...)
	out = append(out, toEntries(byPos[com.PositionEnd])...)
	return out
}
