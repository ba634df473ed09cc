package flow

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by state stores when a session ID is unknown.
var ErrSessionNotFound = errors.New("session not found")

// ErrStepNotFound is returned when a navigation target cannot be located
// in the step sequence.
var ErrStepNotFound = errors.New("step not found")

// ErrChecklistIncomplete is recorded when forward navigation is attempted
// from a checklist step whose completion criteria are not met.
var ErrChecklistIncomplete = errors.New("checklist criteria not met")

// ErrTraversalDepthExceeded is recorded when the conditional-skip loop
// exceeds the configured depth bound, which indicates a condition cycle.
var ErrTraversalDepthExceeded = errors.New("traversal depth exceeded")

// ErrUnknownEventType is returned when subscribing to an event type the
// engine never publishes.
var ErrUnknownEventType = errors.New("unknown event type")

// Checklist update validation, staged: each check has its own error kind
// and no mutation happens on failure.
var (
	ErrMissingStep          = errors.New("no step supplied")
	ErrNotChecklistStep     = errors.New("step is not a checklist step")
	ErrInvalidChecklist     = errors.New("checklist payload is malformed")
	ErrUnknownChecklistItem = errors.New("unknown checklist item")
)

// StepNotFoundError wraps ErrStepNotFound with the offending ID.
type StepNotFoundError struct {
	StepID string
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step not found: %q", e.StepID)
}

func (e *StepNotFoundError) Unwrap() error {
	return ErrStepNotFound
}
