package flow

import (
	"time"
)

// EventType identifies a category of engine notification.
type EventType string

const (
	// EventStateChange carries a fresh EngineState projection.
	EventStateChange EventType = "state_change"
	// EventBeforeStepChange runs sequentially before navigation and may
	// cancel or redirect it.
	EventBeforeStepChange EventType = "before_step_change"
	// EventStepChange fires after every navigation attempt resolves.
	EventStepChange EventType = "step_change"
	// EventStepActive fires when a step becomes current.
	EventStepActive EventType = "step_active"
	// EventStepComplete fires when a step is completed via forward
	// navigation.
	EventStepComplete EventType = "step_complete"
	// EventFlowComplete fires when forward navigation runs off the end of
	// the flow.
	EventFlowComplete EventType = "flow_complete"
	// EventError fires whenever the error service records a failure.
	EventError EventType = "error"
	// EventChecklistItem fires when a checklist item is toggled.
	EventChecklistItem EventType = "checklist_item"
	// EventChecklistProgress fires after checklist progress changes.
	EventChecklistProgress EventType = "checklist_progress"
)

// EventTypes lists every event type the engine publishes. Subscribing to
// a type outside this set is a programming error.
func EventTypes() []EventType {
	return []EventType{
		EventStateChange,
		EventBeforeStepChange,
		EventStepChange,
		EventStepActive,
		EventStepComplete,
		EventFlowComplete,
		EventError,
		EventChecklistItem,
		EventChecklistProgress,
	}
}

// Direction classifies a navigation request.
type Direction string

const (
	DirectionInitial  Direction = "initial"
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
	DirectionSkip     Direction = "skip"
	DirectionGoTo     Direction = "goto"
)

// Event is the envelope delivered to bus listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// StepChangeEvent is the payload of EventStepChange and EventStepActive.
type StepChangeEvent struct {
	From      *Step
	To        *Step
	Direction Direction
	Context   *Context
}

// StepCompleteEvent is the payload of EventStepComplete.
type StepCompleteEvent struct {
	Step    *Step
	Context *Context
}

// FlowCompleteEvent is the payload of EventFlowComplete.
type FlowCompleteEvent struct {
	LastStep *Step
	Context  *Context
}

// StateChangeEvent is the payload of EventStateChange.
type StateChangeEvent struct {
	State EngineState
}

// ErrorEvent is the payload of EventError.
type ErrorEvent struct {
	Record ErrorRecord
}

// ChecklistItemEvent is the payload of EventChecklistItem.
type ChecklistItemEvent struct {
	Step      *Step
	ItemID    string
	Completed bool
	Context   *Context
}

// ChecklistProgressEvent is the payload of EventChecklistProgress.
type ChecklistProgressEvent struct {
	Step     *Step
	Progress ChecklistProgress
}

// BeforeStepChangeEvent is the payload of EventBeforeStepChange. Listeners
// run sequentially and may cancel the navigation or redirect it to a
// different target. A listener error also aborts the navigation.
type BeforeStepChangeEvent struct {
	From      *Step
	TargetID  string
	Direction Direction
	Context   *Context

	cancelled bool
	redirect  string
}

// Cancel aborts the navigation; the current step stays unchanged.
func (e *BeforeStepChangeEvent) Cancel() {
	e.cancelled = true
}

// RedirectTo substitutes the navigation target. Later listeners observe
// the original TargetID; the engine applies the last redirect issued.
func (e *BeforeStepChangeEvent) RedirectTo(stepID string) {
	e.redirect = stepID
}

// Cancelled reports whether a listener cancelled the navigation.
func (e *BeforeStepChangeEvent) Cancelled() bool {
	return e.cancelled
}

// Redirect returns the substituted target, or "" when none was issued.
func (e *BeforeStepChangeEvent) Redirect() string {
	return e.redirect
}
