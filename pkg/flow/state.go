package flow

// EngineState is the derived projection of a navigation session. It is
// recomputed on demand from the current step, the context and the history,
// never stored independently of them.
type EngineState struct {
	// CurrentStepID is empty once the flow has completed.
	CurrentStepID string `json:"current_step_id,omitempty"`

	// IsFirstStep is true iff the current step is the configured initial
	// step, not merely a step with no previous candidate.
	IsFirstStep bool `json:"is_first_step"`
	// IsLastStep is true iff forward resolution yields no next step.
	IsLastStep bool `json:"is_last_step"`

	// NextStepID / PreviousStepID are the reachable candidates, if any.
	NextStepID     string `json:"next_step_id,omitempty"`
	PreviousStepID string `json:"previous_step_id,omitempty"`

	// Navigation affordances. An active error freezes all three.
	CanGoNext     bool `json:"can_go_next"`
	CanGoPrevious bool `json:"can_go_previous"`
	IsSkippable   bool `json:"is_skippable"`

	// Engine flags.
	IsLoading   bool `json:"is_loading"`
	IsHydrating bool `json:"is_hydrating"`
	IsCompleted bool `json:"is_completed"`

	// Error is the message of the active error, if any.
	Error string `json:"error,omitempty"`

	// Progress over the currently relevant step set.
	TotalSteps         int `json:"total_steps"`
	CompletedSteps     int `json:"completed_steps"`
	ProgressPercentage int `json:"progress_percentage"`
	// CurrentStepNumber is the 1-based position of the current step within
	// the relevant set, or 0 when the current step is absent or not
	// itself relevant.
	CurrentStepNumber int `json:"current_step_number"`
}
