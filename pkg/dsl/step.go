package dsl

import "github.com/aretw0/sherpa/pkg/flow"

// StepBuilder provides a fluent API for configuring one step. Step
// chains back into the parent builder so declarations read as one
// expression.
type StepBuilder struct {
	step    flow.Step
	builder *Builder
}

// Content marks the step as a content step with a title and body.
func (s *StepBuilder) Content(title, body string) *StepBuilder {
	s.step.Type = flow.TypeContent
	return s.Title(title).Body(body)
}

// Info marks the step as a plain informational step.
func (s *StepBuilder) Info(title, body string) *StepBuilder {
	s.step.Type = flow.TypeInfo
	return s.Title(title).Body(body)
}

// Form marks the step as a form step.
func (s *StepBuilder) Form() *StepBuilder {
	s.step.Type = flow.TypeForm
	return s
}

// Checklist marks the step as a checklist step gated on the given items.
// Per-item state is stored in the context under dataKey.
func (s *StepBuilder) Checklist(dataKey string, items ...flow.ChecklistItem) *StepBuilder {
	s.step.Type = flow.TypeChecklist
	s.step.Checklist = &flow.Checklist{DataKey: dataKey, Items: items}
	return s
}

// MinItems sets the minimum-completed-items rule on a checklist step.
func (s *StepBuilder) MinItems(n int) *StepBuilder {
	if s.step.Checklist != nil {
		s.step.Checklist.MinItemsToComplete = n
	}
	return s
}

// Title sets the "title" payload entry.
func (s *StepBuilder) Title(title string) *StepBuilder {
	return s.Payload("title", title)
}

// Body sets the "content" payload entry.
func (s *StepBuilder) Body(body string) *StepBuilder {
	return s.Payload("content", body)
}

// Payload sets an arbitrary payload entry.
func (s *StepBuilder) Payload(key string, value any) *StepBuilder {
	if s.step.Payload == nil {
		s.step.Payload = make(map[string]any)
	}
	s.step.Payload[key] = value
	return s
}

// If sets the eligibility condition.
func (s *StepBuilder) If(cond flow.Condition) *StepBuilder {
	s.step.Condition = cond
	return s
}

// Next sets an explicit forward reference.
func (s *StepBuilder) Next(id string) *StepBuilder {
	s.step.Next = flow.RefTo(id)
	return s
}

// NextFunc sets a computed forward reference.
func (s *StepBuilder) NextFunc(fn flow.TargetFunc) *StepBuilder {
	s.step.Next = flow.RefFunc(fn)
	return s
}

// Terminal marks the step as an explicit end of the flow.
func (s *StepBuilder) Terminal() *StepBuilder {
	s.step.Next = flow.RefEnd()
	return s
}

// Prev sets an explicit backward reference.
func (s *StepBuilder) Prev(id string) *StepBuilder {
	s.step.Prev = flow.RefTo(id)
	return s
}

// PrevFunc sets a computed backward reference.
func (s *StepBuilder) PrevFunc(fn flow.TargetFunc) *StepBuilder {
	s.step.Prev = flow.RefFunc(fn)
	return s
}

// Skippable allows skip navigation from this step.
func (s *StepBuilder) Skippable() *StepBuilder {
	s.step.Skippable = true
	return s
}

// SkipTo allows skip navigation and sets its explicit target.
func (s *StepBuilder) SkipTo(id string) *StepBuilder {
	s.step.Skippable = true
	s.step.SkipTo = flow.RefTo(id)
	return s
}

// OnActive sets the activation hook.
func (s *StepBuilder) OnActive(h flow.Hook) *StepBuilder {
	s.step.OnActive = h
	return s
}

// OnComplete sets the completion hook.
func (s *StepBuilder) OnComplete(h flow.Hook) *StepBuilder {
	s.step.OnComplete = h
	return s
}

// Step declares the next step on the parent builder.
func (s *StepBuilder) Step(id string) *StepBuilder {
	return s.builder.Step(id)
}

// Build compiles the whole flow; see Builder.Build.
func (s *StepBuilder) Build() ([]flow.Step, error) {
	return s.builder.Build()
}
