package flow

// Snapshot is the persisted shape of a session: the context plus the
// current step ID. A completed flow is persisted with a null step ID; a
// session that never started has no snapshot at all.
type Snapshot struct {
	FlowData      *Context `json:"flow_data,omitempty"`
	CurrentStepID *string  `json:"current_step_id"`
}

// NewSnapshot builds a snapshot from live session state. An empty
// currentStepID is persisted as null, marking a completed flow.
func NewSnapshot(fc *Context, currentStepID string) *Snapshot {
	s := &Snapshot{FlowData: fc}
	if currentStepID != "" {
		s.CurrentStepID = &currentStepID
	}
	return s
}

// StepID returns the persisted current step ID, or "" when the flow had
// completed.
func (s *Snapshot) StepID() string {
	if s == nil || s.CurrentStepID == nil {
		return ""
	}
	return *s.CurrentStepID
}
