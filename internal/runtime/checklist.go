package runtime

import (
	"context"
	"fmt"
	"math"

	"github.com/aretw0/sherpa/pkg/flow"
)

// checklistStates returns the per-item completion state for a checklist
// step, re-initializing it when absent or when the item definitions have
// structurally changed (a length mismatch invalidates stale state rather
// than reconciling it item by item).
func (e *Engine) checklistStates(step *flow.Step) []flow.ItemState {
	cl := step.Checklist
	if cl == nil || cl.DataKey == "" {
		return nil
	}

	raw, _ := e.fc.Value(cl.DataKey)
	states, ok := flow.DecodeItemStates(raw)
	if ok && len(states) == len(cl.Items) {
		return states
	}

	fresh := make([]flow.ItemState, len(cl.Items))
	for i, item := range cl.Items {
		fresh[i] = flow.ItemState{ID: item.ID}
	}
	e.fc.Set(cl.DataKey, fresh)
	return fresh
}

// checklistComplete reports whether the step's completion criteria hold.
// Items whose condition is currently false are ignored. With
// MinItemsToComplete set, that count decides; otherwise no mandatory
// eligible item may remain pending.
func (e *Engine) checklistComplete(step *flow.Step) bool {
	if step.Checklist == nil {
		return true
	}
	return e.completeFor(step, e.checklistStates(step))
}

func (e *Engine) completeFor(step *flow.Step, states []flow.ItemState) bool {
	cl := step.Checklist
	done := make(map[string]bool, len(states))
	for _, s := range states {
		done[s.ID] = s.Completed
	}

	completedCount := 0
	mandatoryPending := 0
	for _, item := range cl.Items {
		if !item.Eligible(e.fc) {
			continue
		}
		if done[item.ID] {
			completedCount++
		} else if item.IsMandatory() {
			mandatoryPending++
		}
	}

	if cl.MinItemsToComplete > 0 {
		return completedCount >= cl.MinItemsToComplete
	}
	return mandatoryPending == 0
}

// ChecklistProgress summarizes the current step's checklist over
// condition-eligible items.
func (e *Engine) ChecklistProgress(step *flow.Step) flow.ChecklistProgress {
	if step == nil || step.Checklist == nil {
		return flow.ChecklistProgress{}
	}
	return e.progressFor(step, e.checklistStates(step))
}

func (e *Engine) progressFor(step *flow.Step, states []flow.ItemState) flow.ChecklistProgress {
	var progress flow.ChecklistProgress
	done := make(map[string]bool, len(states))
	for _, s := range states {
		done[s.ID] = s.Completed
	}

	for _, item := range step.Checklist.Items {
		if !item.Eligible(e.fc) {
			continue
		}
		progress.Total++
		if done[item.ID] {
			progress.Completed++
		}
	}
	if progress.Total > 0 {
		progress.Percentage = int(math.Round(float64(progress.Completed) / float64(progress.Total) * 100))
	}
	progress.IsComplete = e.completeFor(step, states)
	return progress
}

// UpdateChecklistItem toggles one item of the current step's checklist.
// Validation is staged — missing step, wrong step type, malformed
// payload, unknown item — with a distinct error kind at each stage and
// no mutation on failure. A supplied persist callback runs only when the
// toggle actually changed something; its failure is recorded but not
// propagated.
func (e *Engine) UpdateChecklistItem(ctx context.Context, itemID string, completed bool) error {
	step := e.Current()
	if err := validateChecklistStep(step, itemID); err != nil {
		stepID := ""
		if step != nil {
			stepID = step.ID
		}
		return e.faults.Handle(ctx, err, "checklist.update", stepID, e.fc.DataSnapshot())
	}

	cl := step.Checklist
	states := e.checklistStates(step)
	changed := false
	updated := make([]flow.ItemState, len(states))
	for i, s := range states {
		if s.ID == itemID && s.Completed != completed {
			s.Completed = completed
			changed = true
		}
		updated[i] = s
	}

	// Both notifications go out before the merge; the progress payload is
	// computed from the updated states so listeners see the toggle result.
	e.bus.Publish(ctx, flow.EventChecklistItem, flow.ChecklistItemEvent{
		Step:      step,
		ItemID:    itemID,
		Completed: completed,
		Context:   e.fc,
	})
	e.bus.Publish(ctx, flow.EventChecklistProgress, flow.ChecklistProgressEvent{
		Step:     step,
		Progress: e.progressFor(step, updated),
	})

	e.fc.Set(cl.DataKey, updated)

	if changed && e.persist != nil {
		e.persistSnapshot(ctx, step.ID)
	}
	return nil
}

func validateChecklistStep(step *flow.Step, itemID string) error {
	if step == nil {
		return flow.ErrMissingStep
	}
	if step.Type != flow.TypeChecklist {
		return fmt.Errorf("%w: %s is %q", flow.ErrNotChecklistStep, step.ID, step.Type)
	}
	cl := step.Checklist
	if cl == nil || cl.DataKey == "" || len(cl.Items) == 0 {
		return fmt.Errorf("%w: step %s", flow.ErrInvalidChecklist, step.ID)
	}
	for _, item := range cl.Items {
		if item.ID == itemID {
			return nil
		}
	}
	return fmt.Errorf("%w: %q in step %s", flow.ErrUnknownChecklistItem, itemID, step.ID)
}
