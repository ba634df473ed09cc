package flow

import (
	"encoding/json"
	"reflect"
	"time"
)

// Context is the mutable data bag of a navigation session. It holds the
// caller-owned data map plus a reserved internal namespace tracking step
// completion and the session start time.
//
// A Context is passed by reference through the whole session and mutated
// in place by the engine and the checklist gate. It is not safe for
// concurrent mutation from outside a navigation call.
type Context struct {
	data      map[string]any
	completed map[string]time.Time
	startedAt time.Time
}

// NewContext creates an empty context stamped with the current time.
func NewContext() *Context {
	return NewContextWithData(nil)
}

// NewContextWithData creates a context seeded with the given data map.
// The map is adopted, not copied.
func NewContextWithData(data map[string]any) *Context {
	if data == nil {
		data = make(map[string]any)
	}
	return &Context{
		data:      data,
		completed: make(map[string]time.Time),
		startedAt: time.Now().UTC(),
	}
}

// Value returns the data entry for key.
func (c *Context) Value(key string) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Set writes a data entry.
func (c *Context) Set(key string, value any) {
	c.data[key] = value
}

// Data returns the live data map. Callers share the reference; the engine
// mutates it in place during navigation.
func (c *Context) Data() map[string]any {
	return c.data
}

// Merge applies updates to the data map and reports whether anything
// actually changed. Unchanged keys are compared with reflect.DeepEqual so
// a no-op merge does not trigger spurious change notifications.
func (c *Context) Merge(updates map[string]any) bool {
	changed := false
	for k, v := range updates {
		old, exists := c.data[k]
		if exists && reflect.DeepEqual(old, v) {
			continue
		}
		c.data[k] = v
		changed = true
	}
	return changed
}

// MarkCompleted stamps a step as completed at the given time.
func (c *Context) MarkCompleted(stepID string, at time.Time) {
	c.completed[stepID] = at
}

// ClearCompleted removes a completion record, if present.
func (c *Context) ClearCompleted(stepID string) {
	delete(c.completed, stepID)
}

// CompletedAt returns the completion timestamp for a step.
func (c *Context) CompletedAt(stepID string) (time.Time, bool) {
	t, ok := c.completed[stepID]
	return t, ok
}

// Completed returns a copy of every completion record, regardless of
// whether the completed steps are currently eligible.
func (c *Context) Completed() map[string]time.Time {
	out := make(map[string]time.Time, len(c.completed))
	for k, v := range c.completed {
		out[k] = v
	}
	return out
}

// StartedAt returns the session start time.
func (c *Context) StartedAt() time.Time {
	return c.startedAt
}

// DataSnapshot returns a shallow copy of the data map, used when
// attaching context to error records.
func (c *Context) DataSnapshot() map[string]any {
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// contextJSON is the persisted wire shape of a Context.
type contextJSON struct {
	Data           map[string]any       `json:"data"`
	CompletedSteps map[string]time.Time `json:"completed_steps,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
}

// MarshalJSON implements json.Marshaler.
func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextJSON{
		Data:           c.data,
		CompletedSteps: c.completed,
		StartedAt:      c.startedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Context) UnmarshalJSON(b []byte) error {
	var raw contextJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.data = raw.Data
	if c.data == nil {
		c.data = make(map[string]any)
	}
	c.completed = raw.CompletedSteps
	if c.completed == nil {
		c.completed = make(map[string]time.Time)
	}
	c.startedAt = raw.StartedAt
	return nil
}
