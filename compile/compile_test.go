package compile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/compile"
	"github.com/fiberloom/engine/fiber"
	"github.com/fiberloom/engine/hooks"
	"github.com/fiberloom/engine/model"
	"github.com/fiberloom/engine/telemetry"
)

func newCOM() *com.COM {
	return com.New(telemetry.Noop())
}

func newLoop(c *com.COM) *compile.Loop {
	rec := fiber.NewReconciler(c)
	effects := hooks.NewEffectRegistry()
	return &compile.Loop{
		Reconciler: rec,
		Committer:  &fiber.Committer{},
		Effects:    effects,
		COM:        c,
	}
}

func TestBuildStructure_ConsolidatesMultipleSystemMessageAddsIntoOne(t *testing.T) {
	c := newCOM()
	c.AddMessage(model.Message{Role: model.RoleSystem, Content: []model.Block{model.Text("rule one")}}, nil, com.VisibilityModel)
	c.AddMessage(model.Message{Role: model.RoleSystem, Content: []model.Block{model.Text("rule two")}}, nil, com.VisibilityModel)
	c.AddMessage(model.Message{Role: model.RoleUser, Content: []model.Block{model.Text("hi")}}, nil, com.VisibilityModel)

	structure, err := compile.BuildStructure(c)
	require.NoError(t, err)

	require.NotNil(t, structure.SystemMessage)
	assert.Equal(t, model.RoleSystem, structure.SystemMessage.Role)
	require.Len(t, structure.SystemMessage.Content, 2)
	assert.Equal(t, "rule one", structure.SystemMessage.Content[0].Text)
	assert.Equal(t, "rule two", structure.SystemMessage.Content[1].Text)

	require.Len(t, structure.Timeline, 1, "only the non-system message belongs on the timeline")
}

func TestLoop_Run_StopsAssoonAsNoRecompileIsRequested(t *testing.T) {
	c := newCOM()
	renders := 0
	root := fiber.Com(func(rc *fiber.RenderContext, props any) fiber.Element {
		renders++
		return fiber.Element{}
	}, "", nil)

	loop := newLoop(c)
	structure, err := loop.Run(com.NewTickState(1, nil, nil), root)
	require.NoError(t, err)

	assert.Equal(t, 1, renders)
	assert.Equal(t, 1, structure.Iterations)
	assert.False(t, structure.ForcedStable)
}

func TestLoop_Run_RepeatsWhileComponentRequestsRecompile(t *testing.T) {
	c := newCOM()
	renders := 0
	root := fiber.Com(func(rc *fiber.RenderContext, props any) fiber.Element {
		renders++
		if renders < 3 {
			rc.COM().RequestRecompile("not stable yet")
		}
		return fiber.Element{}
	}, "", nil)

	loop := newLoop(c)
	structure, err := loop.Run(com.NewTickState(1, nil, nil), root)
	require.NoError(t, err)

	assert.Equal(t, 3, renders)
	assert.Equal(t, 3, structure.Iterations)
	assert.False(t, structure.ForcedStable)
}

func TestLoop_Run_ForcesStableAtTheIterationCap(t *testing.T) {
	c := newCOM()
	root := fiber.Com(func(rc *fiber.RenderContext, props any) fiber.Element {
		rc.COM().RequestRecompile("always wants another pass")
		return fiber.Element{}
	}, "", nil)

	loop := newLoop(c)
	loop.MaxIterations = 4
	structure, err := loop.Run(com.NewTickState(1, nil, nil), root)
	require.NoError(t, err)

	assert.Equal(t, 4, structure.Iterations)
	assert.True(t, structure.ForcedStable, "hitting the iteration cap while still requesting recompiles must force stability")
}

func TestLoop_Run_ClampsMaxIterationsToTheCeiling(t *testing.T) {
	c := newCOM()
	renders := 0
	root := fiber.Com(func(rc *fiber.RenderContext, props any) fiber.Element {
		renders++
		rc.COM().RequestRecompile("infinite")
		return fiber.Element{}
	}, "", nil)

	loop := newLoop(c)
	loop.MaxIterations = compile.MaxIterationsCeiling + 100
	structure, err := loop.Run(com.NewTickState(1, nil, nil), root)
	require.NoError(t, err)

	assert.Equal(t, compile.MaxIterationsCeiling, structure.Iterations)
	assert.Equal(t, compile.MaxIterationsCeiling, renders)
}
