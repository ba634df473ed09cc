package dsl_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sherpa/pkg/dsl"
	"github.com/aretw0/sherpa/pkg/flow"
)

func TestBuilder_DeclarationOrder(t *testing.T) {
	steps, err := dsl.New().
		Step("welcome").Content("Welcome", "Hello there.").
		Step("profile").Form().Title("Your profile").
		Step("done").Info("Done", "All set.").Terminal().
		Build()
	require.NoError(t, err)

	require.Len(t, steps, 3)
	assert.Equal(t, "welcome", steps[0].ID)
	assert.Equal(t, "profile", steps[1].ID)
	assert.Equal(t, "done", steps[2].ID)

	assert.Equal(t, flow.TypeContent, steps[0].Type)
	assert.Equal(t, "Welcome", steps[0].Title())
	assert.Equal(t, "Hello there.", steps[0].Content())
	assert.Equal(t, flow.TypeForm, steps[1].Type)
	assert.True(t, steps[2].Next.Resolve(nil).End)
}

func TestBuilder_RefsAndConditions(t *testing.T) {
	steps, err := dsl.New().
		Step("a").Content("A", "").Next("c").
		Step("b").Content("B", "").If(func(fc *flow.Context) bool {
			v, _ := fc.Value("show_b")
			return v == true
		}).
		Step("c").Content("C", "").Prev("a").SkipTo("a").
		Build()
	require.NoError(t, err)

	fc := flow.NewContext()
	assert.Equal(t, "c", steps[0].Next.Resolve(fc).ID)
	assert.False(t, steps[1].Eligible(fc))
	fc.Set("show_b", true)
	assert.True(t, steps[1].Eligible(fc))
	assert.True(t, steps[2].Skippable)
	assert.Equal(t, "a", steps[2].SkipTo.Resolve(fc).ID)
}

func TestBuilder_Checklist(t *testing.T) {
	steps, err := dsl.New().
		Step("tasks").Checklist("tasks_state",
			flow.ChecklistItem{ID: "read", Label: "Read the guide"},
			flow.ChecklistItem{ID: "try", Label: "Try it"},
		).MinItems(1).Title("Get started").
		Step("after").Content("After", "").
		Build()
	require.NoError(t, err)

	cl := steps[0].Checklist
	require.NotNil(t, cl)
	assert.Equal(t, flow.TypeChecklist, steps[0].Type)
	assert.Equal(t, "tasks_state", cl.DataKey)
	assert.Len(t, cl.Items, 2)
	assert.Equal(t, 1, cl.MinItemsToComplete)
}

func TestBuilder_Hooks(t *testing.T) {
	var activated bool
	steps, err := dsl.New().
		Step("a").Content("A", "").OnActive(func(ctx context.Context, fc *flow.Context) error {
			activated = true
			return nil
		}).
		Build()
	require.NoError(t, err)

	require.NotNil(t, steps[0].OnActive)
	require.NoError(t, steps[0].OnActive(context.Background(), flow.NewContext()))
	assert.True(t, activated)
}

func TestBuilder_UndeclaredReference(t *testing.T) {
	_, err := dsl.New().
		Step("a").Content("A", "").Next("ghost").
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuilder_Empty(t *testing.T) {
	_, err := dsl.New().Build()
	assert.Error(t, err)
}

func TestBuilder_RedeclareRefines(t *testing.T) {
	b := dsl.New()
	b.Step("a").Content("A", "")
	b.Step("a").Skippable()
	steps, err := b.Build()
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.True(t, steps[0].Skippable)
	assert.Equal(t, "A", steps[0].Title())
}
