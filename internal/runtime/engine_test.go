package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sherpa/pkg/flow"
)

func linearSteps(ids ...string) []flow.Step {
	steps := make([]flow.Step, len(ids))
	for i, id := range ids {
		steps[i] = flow.Step{ID: id}
	}
	return steps
}

func TestEngine_StartAndNext(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(linearSteps("welcome", "profile", "done"))

	step, err := e.Start(ctx)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, "welcome", step.ID)

	step, err = e.Next(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, "profile", step.ID)
	assert.Equal(t, []string{"welcome"}, e.History())

	_, ok := e.Context().CompletedAt("welcome")
	assert.True(t, ok, "completing a step must stamp it")
}

func TestEngine_NextMergesStepData(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(linearSteps("a", "b"))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	_, err = e.Next(ctx, map[string]any{"name": "ada"})
	require.NoError(t, err)

	v, ok := e.Context().Value("name")
	require.True(t, ok)
	assert.Equal(t, "ada", v)
}

func TestEngine_HistorySymmetry(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(linearSteps("a", "b", "c"))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	step, err := e.Next(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "b", step.ID)

	step, err = e.Previous(ctx)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, "a", step.ID)
	assert.Empty(t, e.History(), "previous via history must consume the entry")

	// And forward again.
	step, err = e.Next(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", step.ID)
}

func TestEngine_PreviousWithoutCandidate(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(linearSteps("only"))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	step, err := e.Previous(ctx)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, "only", step.ID, "no previous candidate leaves the step unchanged")
}

func TestEngine_Skip(t *testing.T) {
	ctx := context.Background()

	t.Run("not skippable is a no-op", func(t *testing.T) {
		e := NewEngine(linearSteps("a", "b"))
		_, err := e.Start(ctx)
		require.NoError(t, err)

		step, err := e.Skip(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a", step.ID)
	})

	t.Run("skip_to wins over next", func(t *testing.T) {
		steps := []flow.Step{
			{ID: "a", Skippable: true, SkipTo: flow.RefTo("c"), Next: flow.RefTo("b")},
			{ID: "b"},
			{ID: "c"},
		}
		e := NewEngine(steps)
		_, err := e.Start(ctx)
		require.NoError(t, err)

		step, err := e.Skip(ctx)
		require.NoError(t, err)
		require.NotNil(t, step)
		assert.Equal(t, "c", step.ID)
	})

	t.Run("array fallback", func(t *testing.T) {
		steps := []flow.Step{
			{ID: "a", Skippable: true},
			{ID: "b"},
		}
		e := NewEngine(steps)
		_, err := e.Start(ctx)
		require.NoError(t, err)

		step, err := e.Skip(ctx)
		require.NoError(t, err)
		require.NotNil(t, step)
		assert.Equal(t, "b", step.ID)
	})

	t.Run("explicit end completes the flow", func(t *testing.T) {
		steps := []flow.Step{
			{ID: "a", Skippable: true, SkipTo: flow.RefEnd()},
			{ID: "b"},
		}
		e := NewEngine(steps)
		_, err := e.Start(ctx)
		require.NoError(t, err)

		step, err := e.Skip(ctx)
		require.NoError(t, err)
		assert.Nil(t, step)
		assert.True(t, e.State().IsCompleted)
	})

	t.Run("skip does not stamp completion", func(t *testing.T) {
		steps := []flow.Step{
			{ID: "a", Skippable: true},
			{ID: "b"},
		}
		e := NewEngine(steps)
		_, err := e.Start(ctx)
		require.NoError(t, err)

		_, err = e.Skip(ctx)
		require.NoError(t, err)
		_, ok := e.Context().CompletedAt("a")
		assert.False(t, ok)
	})
}

func TestEngine_GoTo(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(linearSteps("a", "b", "c"))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	step, err := e.GoTo(ctx, "c", map[string]any{"jumped": true})
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, "c", step.ID)
	assert.Equal(t, []string{"a"}, e.History(), "goto pushes the old step")

	v, _ := e.Context().Value("jumped")
	assert.Equal(t, true, v)

	_, ok := e.Context().CompletedAt("a")
	assert.False(t, ok, "goto must not complete the outgoing step")
}

func TestEngine_GoToUnknownStep(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(linearSteps("a", "b"))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	step, err := e.GoTo(ctx, "nope", nil)
	require.ErrorIs(t, err, flow.ErrStepNotFound)
	require.NotNil(t, step)
	assert.Equal(t, "a", step.ID, "failed goto leaves the session on the old step")
	assert.Error(t, e.CurrentError())
}

func TestEngine_FlowCompletion(t *testing.T) {
	ctx := context.Background()

	var completed bool
	e := NewEngine(linearSteps("a", "b"),
		WithFlowCompleteHook(func(ctx context.Context, fc *flow.Context) error {
			completed = true
			return nil
		}))

	_, err := e.Start(ctx)
	require.NoError(t, err)
	_, err = e.Next(ctx, nil)
	require.NoError(t, err)

	step, err := e.Next(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, step)
	assert.True(t, completed)
	assert.True(t, e.State().IsCompleted)
	assert.Nil(t, e.Current())
}

func TestEngine_FlowCompleteHookSkippedOnExplicitEnd(t *testing.T) {
	ctx := context.Background()

	var completed bool
	steps := []flow.Step{{ID: "a", Next: flow.RefEnd()}}
	e := NewEngine(steps,
		WithFlowCompleteHook(func(ctx context.Context, fc *flow.Context) error {
			completed = true
			return nil
		}))

	_, err := e.Start(ctx)
	require.NoError(t, err)
	step, err := e.Next(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, step)
	assert.False(t, completed, "explicit terminating next suppresses the completion hook")
	assert.True(t, e.State().IsCompleted)
}

func TestEngine_StepHooks(t *testing.T) {
	ctx := context.Background()

	t.Run("OnActive failure does not undo navigation", func(t *testing.T) {
		steps := []flow.Step{
			{ID: "a"},
			{ID: "b", OnActive: func(ctx context.Context, fc *flow.Context) error {
				return assert.AnError
			}},
		}
		e := NewEngine(steps)
		_, err := e.Start(ctx)
		require.NoError(t, err)

		step, err := e.Next(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, step)
		assert.Equal(t, "b", step.ID)
		assert.Error(t, e.CurrentError())
	})

	t.Run("OnComplete failure aborts the advance", func(t *testing.T) {
		steps := []flow.Step{
			{ID: "a", OnComplete: func(ctx context.Context, fc *flow.Context) error {
				return assert.AnError
			}},
			{ID: "b"},
		}
		e := NewEngine(steps)
		_, err := e.Start(ctx)
		require.NoError(t, err)

		step, err := e.Next(ctx, nil)
		require.Error(t, err)
		require.NotNil(t, step)
		assert.Equal(t, "a", step.ID)
		_, ok := e.Context().CompletedAt("a")
		assert.False(t, ok)
	})
}

func TestEngine_LoadingGuardRejectsReentrancy(t *testing.T) {
	ctx := context.Background()

	var reentered *flow.Step
	steps := []flow.Step{
		{ID: "a"},
		{ID: "b"},
	}
	e := NewEngine(steps)

	// Re-enter from within a hook: the guard must reject, not queue.
	e.steps[1].OnActive = func(hookCtx context.Context, fc *flow.Context) error {
		reentered, _ = e.Next(hookCtx, nil)
		return nil
	}

	_, err := e.Start(ctx)
	require.NoError(t, err)
	step, err := e.Next(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", step.ID)
	if reentered != nil {
		assert.Equal(t, "b", reentered.ID, "re-entrant call must be a no-op")
	}
	assert.Equal(t, "b", e.Current().ID)
}

func TestEngine_Persistence(t *testing.T) {
	ctx := context.Background()

	type save struct {
		stepID string
	}
	var saves []save
	persist := func(ctx context.Context, fc *flow.Context, id string) error {
		saves = append(saves, save{stepID: id})
		return nil
	}

	e := NewEngine(linearSteps("a", "b"), WithPersistence(persist))
	_, err := e.Start(ctx)
	require.NoError(t, err)
	assert.Empty(t, saves, "initial navigation must not persist")

	_, err = e.Next(ctx, nil)
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.Equal(t, "b", saves[0].stepID)

	_, err = e.Next(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, saves)
	assert.Equal(t, "", saves[len(saves)-1].stepID, "terminal transition persists a null step")
}

func TestEngine_Hydrate(t *testing.T) {
	ctx := context.Background()

	t.Run("resumes at the saved step without persisting", func(t *testing.T) {
		var saves int
		persist := func(ctx context.Context, fc *flow.Context, id string) error {
			saves++
			return nil
		}

		fc := flow.NewContext()
		fc.Set("answer", 42)
		snap := flow.NewSnapshot(fc, "b")

		e := NewEngine(linearSteps("a", "b", "c"), WithPersistence(persist))
		step, err := e.Hydrate(ctx, snap)
		require.NoError(t, err)
		require.NotNil(t, step)
		assert.Equal(t, "b", step.ID)
		assert.Zero(t, saves)

		v, _ := e.Context().Value("answer")
		assert.Equal(t, 42, v)
	})

	t.Run("persisted null step restores a completed flow", func(t *testing.T) {
		snap := flow.NewSnapshot(flow.NewContext(), "")

		e := NewEngine(linearSteps("a", "b"))
		step, err := e.Hydrate(ctx, snap)
		require.NoError(t, err)
		assert.Nil(t, step)
		assert.True(t, e.State().IsCompleted)
	})

	t.Run("nil snapshot starts fresh", func(t *testing.T) {
		e := NewEngine(linearSteps("a", "b"))
		step, err := e.Hydrate(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, step)
		assert.Equal(t, "a", step.ID)
	})
}

func TestEngine_ErrorQueries(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(linearSteps("a", "b"))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	_, err = e.GoTo(ctx, "missing", nil)
	require.Error(t, err)

	assert.Len(t, e.Errors(), 1)
	assert.Len(t, e.RecentErrors(5), 1)
	assert.Empty(t, e.RecentErrors(0))
	assert.Len(t, e.ErrorsByOperation("navigate"), 1)
	assert.Len(t, e.ErrorsByStep("missing"), 1)
	assert.Empty(t, e.ErrorsByStep("a"))

	e.ClearError(ctx)
	assert.NoError(t, e.CurrentError())
	assert.Len(t, e.Errors(), 1, "clearing the active error keeps history")
}
