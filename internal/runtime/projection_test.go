package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sherpa/pkg/flow"
)

func TestState_Projection(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh session", func(t *testing.T) {
		e := NewEngine(linearSteps("a", "b", "c"))
		_, err := e.Start(ctx)
		require.NoError(t, err)

		st := e.State()
		assert.Equal(t, "a", st.CurrentStepID)
		assert.True(t, st.IsFirstStep)
		assert.False(t, st.IsLastStep)
		assert.Equal(t, "b", st.NextStepID)
		assert.Empty(t, st.PreviousStepID)
		assert.True(t, st.CanGoNext)
		assert.False(t, st.CanGoPrevious)
		assert.False(t, st.IsCompleted)
		assert.Equal(t, 3, st.TotalSteps)
		assert.Equal(t, 0, st.CompletedSteps)
		assert.Equal(t, 0, st.ProgressPercentage)
		assert.Equal(t, 1, st.CurrentStepNumber)
	})

	t.Run("last step", func(t *testing.T) {
		e := NewEngine(linearSteps("a", "b"))
		_, err := e.Start(ctx)
		require.NoError(t, err)
		_, err = e.Next(ctx, nil)
		require.NoError(t, err)

		st := e.State()
		assert.Equal(t, "b", st.CurrentStepID)
		assert.False(t, st.IsFirstStep)
		assert.True(t, st.IsLastStep)
		assert.Empty(t, st.NextStepID)
		assert.Equal(t, "a", st.PreviousStepID)
		assert.False(t, st.CanGoNext)
		assert.True(t, st.CanGoPrevious)
		assert.Equal(t, 50, st.ProgressPercentage)
		assert.Equal(t, 2, st.CurrentStepNumber)
	})

	t.Run("completed flow", func(t *testing.T) {
		e := NewEngine(linearSteps("a"))
		_, err := e.Start(ctx)
		require.NoError(t, err)
		_, err = e.Next(ctx, nil)
		require.NoError(t, err)

		st := e.State()
		assert.True(t, st.IsCompleted)
		assert.Empty(t, st.CurrentStepID)
		assert.False(t, st.CanGoNext)
		assert.False(t, st.CanGoPrevious)
		assert.Equal(t, 100, st.ProgressPercentage)
		assert.Equal(t, 0, st.CurrentStepNumber)
	})

	t.Run("deterministic for a fixed session", func(t *testing.T) {
		e := NewEngine(linearSteps("a", "b", "c"))
		_, err := e.Start(ctx)
		require.NoError(t, err)
		_, err = e.Next(ctx, nil)
		require.NoError(t, err)

		first := e.State()
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, e.State())
		}
	})
}

func TestState_RelevantStepSet(t *testing.T) {
	ctx := context.Background()

	t.Run("false-condition steps are excluded from totals", func(t *testing.T) {
		steps := []flow.Step{
			{ID: "a"},
			{ID: "b", Condition: flagIs("beta", true)},
			{ID: "c"},
		}
		e := NewEngine(steps)
		_, err := e.Start(ctx)
		require.NoError(t, err)

		st := e.State()
		assert.Equal(t, 2, st.TotalSteps)
		assert.Equal(t, 1, st.CurrentStepNumber)

		// Flipping the condition widens the relevant set.
		e.Context().Set("beta", true)
		st = e.State()
		assert.Equal(t, 3, st.TotalSteps)
	})

	t.Run("completion of a now-irrelevant step is excluded but retained", func(t *testing.T) {
		steps := []flow.Step{
			{ID: "a"},
			{ID: "b", Condition: flagIs("beta", true)},
			{ID: "c"},
		}
		e := NewEngine(steps)
		e.Context().Set("beta", true)
		_, err := e.Start(ctx)
		require.NoError(t, err)
		_, err = e.Next(ctx, nil) // a -> b
		require.NoError(t, err)
		_, err = e.Next(ctx, nil) // b -> c
		require.NoError(t, err)

		st := e.State()
		assert.Equal(t, 3, st.TotalSteps)
		assert.Equal(t, 2, st.CompletedSteps)

		// b's condition turns false: its completion record survives in the
		// context but drops out of the progress counts.
		e.Context().Set("beta", false)
		st = e.State()
		assert.Equal(t, 2, st.TotalSteps)
		assert.Equal(t, 1, st.CompletedSteps)
		_, ok := e.Context().CompletedAt("b")
		assert.True(t, ok)
		assert.True(t, e.CompletedSteps()["b"])
	})
}

func TestState_ErrorFreezesAffordances(t *testing.T) {
	ctx := context.Background()
	e := NewEngine([]flow.Step{
		{ID: "a"},
		{ID: "b", Skippable: true},
		{ID: "c"},
	})
	_, err := e.Start(ctx)
	require.NoError(t, err)
	_, err = e.Next(ctx, nil)
	require.NoError(t, err)

	st := e.State()
	assert.True(t, st.CanGoNext)
	assert.True(t, st.CanGoPrevious)
	assert.True(t, st.IsSkippable)

	_, err = e.GoTo(ctx, "missing", nil)
	require.Error(t, err)

	st = e.State()
	assert.NotEmpty(t, st.Error)
	assert.False(t, st.CanGoNext)
	assert.False(t, st.CanGoPrevious)
	assert.False(t, st.IsSkippable)
	assert.Equal(t, "b", st.CurrentStepID, "the session itself is untouched")

	e.ClearError(ctx)
	st = e.State()
	assert.Empty(t, st.Error)
	assert.True(t, st.CanGoNext)
	assert.True(t, st.IsSkippable)
}

func TestState_HydratingFlag(t *testing.T) {
	ctx := context.Background()

	var observed []bool
	e := NewEngine(linearSteps("a", "b"))
	_, err := e.Subscribe(flow.EventStateChange, func(ctx context.Context, ev flow.Event) error {
		observed = append(observed, ev.Payload.(flow.StateChangeEvent).State.IsHydrating)
		return nil
	})
	require.NoError(t, err)

	fc := flow.NewContext()
	_, err = e.Hydrate(ctx, flow.NewSnapshot(fc, "b"))
	require.NoError(t, err)

	require.NotEmpty(t, observed)
	assert.True(t, observed[0], "state published during hydration carries the flag")
	assert.False(t, e.State().IsHydrating)
}

func TestState_ProgressRounding(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(linearSteps("a", "b", "c"))
	_, err := e.Start(ctx)
	require.NoError(t, err)
	_, err = e.Next(ctx, nil)
	require.NoError(t, err)

	// 1 of 3 complete rounds to 33.
	assert.Equal(t, 33, e.State().ProgressPercentage)

	_, err = e.Next(ctx, nil)
	require.NoError(t, err)
	// 2 of 3 complete rounds to 67.
	assert.Equal(t, 67, e.State().ProgressPercentage)
}
