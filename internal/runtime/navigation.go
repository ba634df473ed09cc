package runtime

import (
	"context"
	"time"

	"github.com/aretw0/sherpa/pkg/flow"
)

// prevSource identifies which fallback produced a previous-step candidate.
type prevSource int

const (
	prevNone prevSource = iota
	prevExplicit
	prevHistory
	prevArray
)

// resolveNext returns the forward candidate from s, before eligibility
// skip-looping: the explicit Next reference wins; a deferred reference
// falls back to the first eligible step after s in array order. Nil means
// the flow ends here (explicit end, end of sequence, or unknown step).
func (e *Engine) resolveNext(s *flow.Step) *flow.Step {
	if s == nil {
		return nil
	}
	t := s.Next.Resolve(e.fc)
	if t.End {
		return nil
	}
	if t.ID != "" {
		return e.step(t.ID)
	}
	idx, ok := e.index[s.ID]
	if !ok {
		return nil
	}
	for i := idx + 1; i < len(e.steps); i++ {
		if e.steps[i].Eligible(e.fc) {
			return &e.steps[i]
		}
	}
	return nil
}

// resolvePrevious returns the backward candidate from s and the source
// that produced it: explicit Prev reference, then the history tail, then
// the preceding array index. Eligibility is corrected afterwards by
// eligiblePrevious.
func (e *Engine) resolvePrevious(s *flow.Step) (*flow.Step, prevSource) {
	if s == nil {
		return nil, prevNone
	}
	t := s.Prev.Resolve(e.fc)
	if t.End {
		return nil, prevNone
	}
	if t.ID != "" {
		return e.step(t.ID), prevExplicit
	}

	e.mu.Lock()
	var tail string
	if n := len(e.history); n > 0 {
		tail = e.history[n-1]
	}
	e.mu.Unlock()
	if tail != "" {
		if st := e.step(tail); st != nil {
			return st, prevHistory
		}
	}

	idx, ok := e.index[s.ID]
	if ok && idx > 0 {
		return &e.steps[idx-1], prevArray
	}
	return nil, prevNone
}

// eligibleNext applies the conditional-skip loop forward: while the
// candidate exists but its condition is false, advance again from that
// candidate using the forward rule. Bounded by the traversal depth guard.
func (e *Engine) eligibleNext(cand *flow.Step) (*flow.Step, error) {
	for depth := 0; cand != nil && !cand.Eligible(e.fc); depth++ {
		if depth >= e.maxDepth {
			return nil, flow.ErrTraversalDepthExceeded
		}
		cand = e.resolveNext(cand)
	}
	return cand, nil
}

// eligiblePrevious corrects an ineligible backward candidate by walking
// the candidate's own Prev chain only — never re-consulting history or
// array order, so rejected sources cannot re-enter the chain. A broken
// chain (absent or explicit end on an ineligible candidate) means there
// is no previous step.
func (e *Engine) eligiblePrevious(cand *flow.Step) (*flow.Step, error) {
	for depth := 0; cand != nil && !cand.Eligible(e.fc); depth++ {
		if depth >= e.maxDepth {
			return nil, flow.ErrTraversalDepthExceeded
		}
		t := cand.Prev.Resolve(e.fc)
		if t.End || t.Deferred() {
			return nil, nil
		}
		cand = e.step(t.ID)
	}
	return cand, nil
}

// navigateToStep executes one navigation: pre-navigation listeners
// (cancellable, redirectable), target resolution with the conditional
// skip loop, history and lifecycle bookkeeping, and notifications.
// Callers hold the loading guard.
func (e *Engine) navigateToStep(ctx context.Context, targetID string, dir flow.Direction) (*flow.Step, error) {
	from := e.Current()

	if e.bus.HasListeners(flow.EventBeforeStepChange) {
		ev := &flow.BeforeStepChangeEvent{
			From:      from,
			TargetID:  targetID,
			Direction: dir,
			Context:   e.fc,
		}
		if err := e.bus.PublishSequential(ctx, flow.EventBeforeStepChange, ev); err != nil {
			return from, err
		}
		if ev.Cancelled() {
			e.logger.DebugContext(ctx, "navigation cancelled", "target", targetID, "direction", string(dir))
			return from, nil
		}
		if r := ev.Redirect(); r != "" {
			targetID = r
		}
	}

	e.faults.Clear()

	var target *flow.Step
	if targetID != "" {
		target = e.step(targetID)
		if target == nil {
			err := e.faults.Handle(ctx, &flow.StepNotFoundError{StepID: targetID},
				"navigate."+string(dir), targetID, e.fc.DataSnapshot())
			e.publishState(ctx)
			return from, err
		}
		if !target.Eligible(e.fc) {
			var skipErr error
			if dir == flow.DirectionPrevious {
				target, skipErr = e.eligiblePrevious(target)
			} else {
				target, skipErr = e.eligibleNext(target)
			}
			if skipErr != nil {
				err := e.faults.Handle(ctx, skipErr, "navigate."+string(dir), targetID, e.fc.DataSnapshot())
				e.publishState(ctx)
				return from, err
			}
		}
	}

	// Backward navigation never completes the flow: a correction chain
	// that ran out of candidates leaves the session where it is.
	if target == nil && dir == flow.DirectionPrevious {
		e.logger.DebugContext(ctx, "no eligible previous step", "from", targetID)
		return from, nil
	}

	if target != nil {
		e.activateStep(ctx, from, target, dir)
	} else {
		e.completeFlow(ctx, from, dir)
	}

	if e.onStepChange != nil {
		e.faults.SafeExecute(ctx, "step_change_callback", targetID, e.fc.DataSnapshot(), func() error {
			e.onStepChange(ctx, from, target, e.fc)
			return nil
		})
	}

	e.bus.Publish(ctx, flow.EventStepChange, flow.StepChangeEvent{
		From:      from,
		To:        target,
		Direction: dir,
		Context:   e.fc,
	})
	e.publishState(ctx)
	return target, nil
}

func (e *Engine) activateStep(ctx context.Context, from, target *flow.Step, dir flow.Direction) {
	if target.Type == flow.TypeChecklist {
		e.checklistStates(target)
	}

	e.mu.Lock()
	if from != nil && dir != flow.DirectionPrevious {
		e.history = append(e.history, from.ID)
	}
	e.currentID = target.ID
	e.completed = false
	e.mu.Unlock()

	e.logger.DebugContext(ctx, "step active", "step", target.ID, "direction", string(dir))

	if target.OnActive != nil {
		e.faults.SafeExecute(ctx, "step_active_hook", target.ID, e.fc.DataSnapshot(), func() error {
			return target.OnActive(ctx, e.fc)
		})
	}
	e.bus.Publish(ctx, flow.EventStepActive, flow.StepChangeEvent{
		From:      from,
		To:        target,
		Direction: dir,
		Context:   e.fc,
	})
}

func (e *Engine) completeFlow(ctx context.Context, from *flow.Step, dir flow.Direction) {
	e.mu.Lock()
	e.currentID = ""
	e.completed = true
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "flow completed", "direction", string(dir))

	// The completion hook is skipped when the outgoing step explicitly
	// declared the end of the flow, and on initial hydration.
	explicitEnd := from != nil && from.Next.Resolve(e.fc).End
	if e.onFlowComplete != nil && dir != flow.DirectionInitial && !explicitEnd {
		fromID := ""
		if from != nil {
			fromID = from.ID
		}
		e.faults.SafeExecute(ctx, "flow_complete_hook", fromID, e.fc.DataSnapshot(), func() error {
			return e.onFlowComplete(ctx, e.fc)
		})
	}

	e.bus.Publish(ctx, flow.EventFlowComplete, flow.FlowCompleteEvent{
		LastStep: from,
		Context:  e.fc,
	})
	e.persistSnapshot(ctx, "")
}

// Next completes the current step and advances along the forward rule.
// For checklist steps the completion gate is verified first; an
// incomplete checklist sets an error and leaves the session untouched.
func (e *Engine) Next(ctx context.Context, stepData map[string]any) (*flow.Step, error) {
	cur := e.Current()
	if cur == nil || !e.beginNavigation() {
		return cur, nil
	}
	defer e.endNavigation()

	if cur.Type == flow.TypeChecklist && !e.checklistComplete(cur) {
		err := e.faults.Handle(ctx, flow.ErrChecklistIncomplete, "next", cur.ID, e.fc.DataSnapshot())
		e.publishState(ctx)
		return cur, err
	}

	if len(stepData) > 0 {
		e.fc.Merge(stepData)
	}

	if cur.OnComplete != nil {
		if ok := e.faults.SafeExecute(ctx, "step_complete_hook", cur.ID, e.fc.DataSnapshot(), func() error {
			return cur.OnComplete(ctx, e.fc)
		}); !ok {
			e.publishState(ctx)
			return cur, e.faults.Current()
		}
	}

	e.bus.Publish(ctx, flow.EventStepComplete, flow.StepCompleteEvent{Step: cur, Context: e.fc})
	e.fc.MarkCompleted(cur.ID, time.Now().UTC())

	var targetID string
	if next := e.resolveNext(cur); next != nil {
		targetID = next.ID
	}
	step, err := e.navigateToStep(ctx, targetID, flow.DirectionNext)

	newID := ""
	if step != nil {
		newID = step.ID
	}
	e.persistSnapshot(ctx, newID)
	return step, err
}

// Previous navigates backward. The candidate comes from the explicit Prev
// reference, the history tail, or array order, in that priority; a
// history-sourced candidate consumes its history entry.
func (e *Engine) Previous(ctx context.Context) (*flow.Step, error) {
	cur := e.Current()
	if cur == nil || !e.beginNavigation() {
		return cur, nil
	}
	defer e.endNavigation()

	cand, source := e.resolvePrevious(cur)
	if cand == nil {
		return cur, nil
	}
	if source == prevHistory {
		e.mu.Lock()
		if n := len(e.history); n > 0 {
			e.history = e.history[:n-1]
		}
		e.mu.Unlock()
	}
	return e.navigateToStep(ctx, cand.ID, flow.DirectionPrevious)
}

// Skip advances past the current step without completing it. Target
// priority: SkipTo, then Next, then the first eligible following step in
// array order; with none of those the flow completes.
func (e *Engine) Skip(ctx context.Context) (*flow.Step, error) {
	cur := e.Current()
	if cur == nil || !cur.Skippable {
		return cur, nil
	}
	if !e.beginNavigation() {
		return cur, nil
	}
	defer e.endNavigation()

	targetID := ""
	if t := cur.SkipTo.Resolve(e.fc); !t.Deferred() {
		if !t.End {
			targetID = t.ID
		}
	} else if t := cur.Next.Resolve(e.fc); !t.Deferred() {
		if !t.End {
			targetID = t.ID
		}
	} else if next := e.resolveNext(cur); next != nil {
		targetID = next.ID
	}
	return e.navigateToStep(ctx, targetID, flow.DirectionSkip)
}

// GoTo jumps to an arbitrary step, merging stepData unconditionally.
// Unlike Next it neither enforces checklist completion nor runs the
// current step's completion hook.
func (e *Engine) GoTo(ctx context.Context, targetID string, stepData map[string]any) (*flow.Step, error) {
	if !e.beginNavigation() {
		return e.Current(), nil
	}
	defer e.endNavigation()

	if len(stepData) > 0 {
		e.fc.Merge(stepData)
	}
	return e.navigateToStep(ctx, targetID, flow.DirectionGoTo)
}
