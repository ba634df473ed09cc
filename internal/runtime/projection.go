package runtime

import (
	"math"

	"github.com/aretw0/sherpa/pkg/flow"
)

// State projects the derived engine state from the current step, the
// context and the history. The projection is pure: it never mutates the
// session, and for a fixed session it is deterministic.
func (e *Engine) State() flow.EngineState {
	e.mu.Lock()
	currentID := e.currentID
	loading := e.loading
	hydrating := e.hydrating
	completed := e.completed
	e.mu.Unlock()

	cur := e.step(currentID)
	st := flow.EngineState{
		CurrentStepID: currentID,
		IsLoading:     loading,
		IsHydrating:   hydrating,
		IsCompleted:   completed,
	}

	if err := e.faults.Current(); err != nil {
		st.Error = err.Error()
	}

	if cur != nil {
		st.IsFirstStep = cur.ID == e.initialID

		next := e.resolveNext(cur)
		if next != nil {
			st.NextStepID = next.ID
		}
		st.IsLastStep = next == nil

		prev, _ := e.resolvePrevious(cur)
		if prev != nil {
			st.PreviousStepID = prev.ID
		}

		// An active error freezes every navigation affordance.
		frozen := st.Error != ""
		st.CanGoNext = next != nil && !frozen
		st.CanGoPrevious = prev != nil && !frozen
		st.IsSkippable = cur.Skippable && !frozen
	}

	e.projectProgress(cur, &st)
	return st
}

// projectProgress fills the progress block over the relevant step set:
// steps whose condition is absent or currently true. A completion record
// for a step whose condition has since turned false is retained in the
// context but excluded from these counts.
func (e *Engine) projectProgress(cur *flow.Step, st *flow.EngineState) {
	completedAt := e.fc.Completed()

	total := 0
	done := 0
	number := 0
	for i := range e.steps {
		s := &e.steps[i]
		if !s.Eligible(e.fc) {
			continue
		}
		total++
		if _, ok := completedAt[s.ID]; ok {
			done++
		}
		if cur != nil && s.ID == cur.ID {
			number = total
		}
	}

	st.TotalSteps = total
	st.CompletedSteps = done
	st.CurrentStepNumber = number
	if total > 0 {
		st.ProgressPercentage = int(math.Round(float64(done) / float64(total) * 100))
	}
}

// CompletedSteps returns every completion record regardless of the
// steps' current eligibility.
func (e *Engine) CompletedSteps() map[string]bool {
	records := e.fc.Completed()
	out := make(map[string]bool, len(records))
	for id := range records {
		out[id] = true
	}
	return out
}
