package flow

import "context"

// StepType discriminates step behavior. Most types are opaque to the
// navigation core; TypeChecklist enables the completion gate.
type StepType string

const (
	// TypeContent displays content and has no extra gating.
	TypeContent StepType = "content"
	// TypeForm collects input; opaque to navigation.
	TypeForm StepType = "form"
	// TypeChecklist requires its completion criteria to be satisfied
	// before forward navigation is allowed.
	TypeChecklist StepType = "checklist"
	// TypeInfo is a plain informational step.
	TypeInfo StepType = "info"
)

// Condition decides whether a step is currently eligible.
// A nil Condition means "always eligible".
type Condition func(*Context) bool

// Hook is a user-supplied lifecycle callback. Hooks may block; the engine
// awaits them at well-defined suspension points.
type Hook func(ctx context.Context, fc *Context) error

// Step is a node in the flow graph. Steps are supplied once at engine
// construction and treated as read-only for the lifetime of a session.
type Step struct {
	// ID uniquely identifies the step within the flow. Uniqueness is
	// enforced by the definition validator, not re-checked per navigation.
	ID string `json:"id" yaml:"id"`

	// Type selects gate behavior. Empty type behaves like TypeContent.
	Type StepType `json:"type,omitempty" yaml:"type,omitempty"`

	// Condition marks the step ineligible when it evaluates false.
	// Ineligible steps are skipped during traversal but keep their index.
	Condition Condition `json:"-" yaml:"-"`

	// Next, Prev and SkipTo override the default traversal order.
	// The zero Ref defers to the fallback source for its direction.
	Next   Ref `json:"-" yaml:"-"`
	Prev   Ref `json:"-" yaml:"-"`
	SkipTo Ref `json:"-" yaml:"-"`

	// Skippable gates whether skip navigation is permitted from this step.
	Skippable bool `json:"skippable,omitempty" yaml:"skippable,omitempty"`

	// Checklist carries the completion criteria for TypeChecklist steps.
	Checklist *Checklist `json:"checklist,omitempty" yaml:"checklist,omitempty"`

	// Payload is opaque caller data (titles, content, form schemas...).
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`

	// OnActive runs after the step becomes current. Failures are reported
	// but do not undo the navigation.
	OnActive Hook `json:"-" yaml:"-"`

	// OnComplete runs when the step is completed via forward navigation.
	// A failure aborts that navigation.
	OnComplete Hook `json:"-" yaml:"-"`
}

// Eligible reports whether the step's condition currently holds.
func (s *Step) Eligible(fc *Context) bool {
	if s == nil {
		return false
	}
	if s.Condition == nil {
		return true
	}
	return s.Condition(fc)
}

// Title returns the "title" payload entry, falling back to the step ID.
func (s *Step) Title() string {
	if s == nil {
		return ""
	}
	if t, ok := s.Payload["title"].(string); ok && t != "" {
		return t
	}
	return s.ID
}

// Content returns the "content" payload entry, if any.
func (s *Step) Content() string {
	if s == nil {
		return ""
	}
	c, _ := s.Payload["content"].(string)
	return c
}
