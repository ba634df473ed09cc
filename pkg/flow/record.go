package flow

import "time"

// ErrorRecord is one entry in the engine's bounded failure history.
// Records are immutable once appended.
type ErrorRecord struct {
	// Err is the normalized failure. Not serialized; Message carries the
	// text across process boundaries.
	Err error `json:"-"`

	Message   string    `json:"message"`
	Operation string    `json:"operation"`
	StepID    string    `json:"step_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Stack is the goroutine stack captured at Handle time.
	Stack string `json:"stack,omitempty"`

	// Context is a shallow snapshot of the session data at failure time.
	Context map[string]any `json:"context,omitempty"`
}
