package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sherpa/pkg/flow"
)

func checklistFlow(cl *flow.Checklist) []flow.Step {
	return []flow.Step{
		{ID: "tasks", Type: flow.TypeChecklist, Checklist: cl},
		{ID: "after"},
	}
}

func TestChecklist_GatesNext(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(checklistFlow(&flow.Checklist{
		DataKey: "tasks_state",
		Items: []flow.ChecklistItem{
			{ID: "read", Label: "Read the guide"},
			{ID: "install", Label: "Install the tool"},
		},
	}))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	before := e.Context().DataSnapshot()
	step, err := e.Next(ctx, map[string]any{"ignored": true})
	require.ErrorIs(t, err, flow.ErrChecklistIncomplete)
	require.NotNil(t, step)
	assert.Equal(t, "tasks", step.ID)
	assert.Equal(t, before, e.Context().DataSnapshot(), "a gated next must not merge step data")
	assert.Error(t, e.CurrentError())

	e.ClearError(ctx)
	require.NoError(t, e.UpdateChecklistItem(ctx, "read", true))
	require.NoError(t, e.UpdateChecklistItem(ctx, "install", true))

	step, err = e.Next(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "after", step.ID)
}

func TestChecklist_OptionalItemsDoNotGate(t *testing.T) {
	ctx := context.Background()
	optional := false
	e := NewEngine(checklistFlow(&flow.Checklist{
		DataKey: "tasks_state",
		Items: []flow.ChecklistItem{
			{ID: "must", Label: "Required"},
			{ID: "may", Label: "Optional", Mandatory: &optional},
		},
	}))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, e.UpdateChecklistItem(ctx, "must", true))
	step, err := e.Next(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "after", step.ID)
}

func TestChecklist_MinItemsOverridesMandatory(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(checklistFlow(&flow.Checklist{
		DataKey:            "tasks_state",
		MinItemsToComplete: 2,
		Items: []flow.ChecklistItem{
			{ID: "one"},
			{ID: "two"},
			{ID: "three"},
		},
	}))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, e.UpdateChecklistItem(ctx, "one", true))
	_, err = e.Next(ctx, nil)
	require.ErrorIs(t, err, flow.ErrChecklistIncomplete)
	e.ClearError(ctx)

	require.NoError(t, e.UpdateChecklistItem(ctx, "three", true))
	step, err := e.Next(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "after", step.ID, "any two of three satisfy the count")
}

func TestChecklist_ConditionalItems(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(checklistFlow(&flow.Checklist{
		DataKey: "tasks_state",
		Items: []flow.ChecklistItem{
			{ID: "always"},
			{ID: "pro_only", Condition: flagIs("plan", "pro")},
		},
	}))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	// The pro item is invisible, so only "always" gates.
	require.NoError(t, e.UpdateChecklistItem(ctx, "always", true))
	progress := e.ChecklistProgress(e.Current())
	assert.Equal(t, 1, progress.Total)
	assert.True(t, progress.IsComplete)

	// Turning the condition on resurfaces the item and reopens the gate.
	e.Context().Set("plan", "pro")
	progress = e.ChecklistProgress(e.Current())
	assert.Equal(t, 2, progress.Total)
	assert.False(t, progress.IsComplete)
}

func TestChecklist_ToggleOffReopensGate(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(checklistFlow(&flow.Checklist{
		DataKey: "tasks_state",
		Items:   []flow.ChecklistItem{{ID: "only"}},
	}))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, e.UpdateChecklistItem(ctx, "only", true))
	assert.True(t, e.ChecklistProgress(e.Current()).IsComplete)

	require.NoError(t, e.UpdateChecklistItem(ctx, "only", false))
	assert.False(t, e.ChecklistProgress(e.Current()).IsComplete)

	_, err = e.Next(ctx, nil)
	assert.ErrorIs(t, err, flow.ErrChecklistIncomplete)
}

func TestChecklist_UpdateValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("non-checklist step", func(t *testing.T) {
		e := NewEngine(linearSteps("plain"))
		_, err := e.Start(ctx)
		require.NoError(t, err)

		err = e.UpdateChecklistItem(ctx, "x", true)
		assert.ErrorIs(t, err, flow.ErrNotChecklistStep)
	})

	t.Run("no active step", func(t *testing.T) {
		e := NewEngine(linearSteps("a"))
		err := e.UpdateChecklistItem(ctx, "x", true)
		assert.ErrorIs(t, err, flow.ErrMissingStep)
	})

	t.Run("malformed checklist", func(t *testing.T) {
		steps := []flow.Step{{ID: "broken", Type: flow.TypeChecklist, Checklist: &flow.Checklist{}}}
		e := NewEngine(steps)
		_, err := e.Start(ctx)
		require.NoError(t, err)

		err = e.UpdateChecklistItem(ctx, "x", true)
		assert.ErrorIs(t, err, flow.ErrInvalidChecklist)
	})

	t.Run("unknown item leaves state untouched", func(t *testing.T) {
		e := NewEngine(checklistFlow(&flow.Checklist{
			DataKey: "tasks_state",
			Items:   []flow.ChecklistItem{{ID: "known"}},
		}))
		_, err := e.Start(ctx)
		require.NoError(t, err)

		before := e.Context().DataSnapshot()
		err = e.UpdateChecklistItem(ctx, "mystery", true)
		assert.ErrorIs(t, err, flow.ErrUnknownChecklistItem)
		assert.Equal(t, before, e.Context().DataSnapshot())
	})
}

func TestChecklist_StructuralChangeReinitializesState(t *testing.T) {
	ctx := context.Background()
	cl := &flow.Checklist{
		DataKey: "tasks_state",
		Items:   []flow.ChecklistItem{{ID: "a"}, {ID: "b"}},
	}
	e := NewEngine(checklistFlow(cl))

	// Stale state from an older two-item definition, now three items.
	e.Context().Set("tasks_state", []flow.ItemState{{ID: "a", Completed: true}})
	cl.Items = append(cl.Items, flow.ChecklistItem{ID: "c"})

	_, err := e.Start(ctx)
	require.NoError(t, err)

	states, ok := flow.DecodeItemStates(mustValue(t, e.Context(), "tasks_state"))
	require.True(t, ok)
	require.Len(t, states, 3)
	for _, s := range states {
		assert.False(t, s.Completed, "reinitialized state starts pending")
	}
}

func TestChecklist_EventsAndPersistence(t *testing.T) {
	ctx := context.Background()

	var saves int
	e := NewEngine(checklistFlow(&flow.Checklist{
		DataKey: "tasks_state",
		Items:   []flow.ChecklistItem{{ID: "only"}},
	}), WithPersistence(func(ctx context.Context, fc *flow.Context, id string) error {
		saves++
		return nil
	}))

	var itemEvents, progressEvents int
	_, err := e.Subscribe(flow.EventChecklistItem, func(ctx context.Context, ev flow.Event) error {
		itemEvents++
		return nil
	})
	require.NoError(t, err)
	_, err = e.Subscribe(flow.EventChecklistProgress, func(ctx context.Context, ev flow.Event) error {
		progressEvents++
		return nil
	})
	require.NoError(t, err)

	_, err = e.Start(ctx)
	require.NoError(t, err)
	saves = 0

	require.NoError(t, e.UpdateChecklistItem(ctx, "only", true))
	assert.Equal(t, 1, itemEvents)
	assert.Equal(t, 1, progressEvents)
	assert.Equal(t, 1, saves)

	// Re-applying the same value still notifies but does not persist.
	require.NoError(t, e.UpdateChecklistItem(ctx, "only", true))
	assert.Equal(t, 2, itemEvents)
	assert.Equal(t, 1, saves)
}

func TestChecklist_NotificationsPrecedeMerge(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(checklistFlow(&flow.Checklist{
		DataKey: "tasks_state",
		Items:   []flow.ChecklistItem{{ID: "only"}},
	}))
	_, err := e.Start(ctx)
	require.NoError(t, err)

	// Both notifications fire before the merge: listeners still see the
	// pre-toggle context, while the progress payload carries the result.
	var itemMerged, progressMerged bool
	var progress flow.ChecklistProgress
	toggledInContext := func() bool {
		states, ok := flow.DecodeItemStates(mustValue(t, e.Context(), "tasks_state"))
		require.True(t, ok)
		require.Len(t, states, 1)
		return states[0].Completed
	}
	_, err = e.Subscribe(flow.EventChecklistItem, func(ctx context.Context, ev flow.Event) error {
		itemMerged = toggledInContext()
		return nil
	})
	require.NoError(t, err)
	_, err = e.Subscribe(flow.EventChecklistProgress, func(ctx context.Context, ev flow.Event) error {
		progressMerged = toggledInContext()
		progress = ev.Payload.(flow.ChecklistProgressEvent).Progress
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, e.UpdateChecklistItem(ctx, "only", true))
	assert.False(t, itemMerged, "item listener runs before the context merge")
	assert.False(t, progressMerged, "progress listener runs before the context merge")
	assert.Equal(t, 1, progress.Completed)
	assert.True(t, progress.IsComplete)
	assert.True(t, toggledInContext(), "the merge lands after the notifications")
}

func mustValue(t *testing.T, fc *flow.Context, key string) any {
	t.Helper()
	v, ok := fc.Value(key)
	require.True(t, ok, "context key %q missing", key)
	return v
}
