package dsl

import (
	"fmt"

	"github.com/aretw0/sherpa/pkg/flow"
)

// Builder accumulates step definitions in declaration order. Declaration
// order is significant: it is the fallback traversal order of the flow.
type Builder struct {
	order []*StepBuilder
	byID  map[string]*StepBuilder
}

// New creates an empty flow builder.
func New() *Builder {
	return &Builder{byID: make(map[string]*StepBuilder)}
}

// Step declares a step, or returns the existing builder for the ID so a
// step can be refined in multiple places.
func (b *Builder) Step(id string) *StepBuilder {
	if sb, ok := b.byID[id]; ok {
		return sb
	}
	sb := &StepBuilder{
		step:    flow.Step{ID: id},
		builder: b,
	}
	b.order = append(b.order, sb)
	b.byID[id] = sb
	return sb
}

// Build compiles the declared steps into a flow definition, verifying
// that every literal reference resolves to a declared step.
func (b *Builder) Build() ([]flow.Step, error) {
	if len(b.order) == 0 {
		return nil, fmt.Errorf("flow has no steps")
	}

	steps := make([]flow.Step, 0, len(b.order))
	for _, sb := range b.order {
		steps = append(steps, sb.step)
	}

	for _, s := range steps {
		for name, ref := range map[string]flow.Ref{"next": s.Next, "prev": s.Prev, "skip_to": s.SkipTo} {
			id, ok := ref.LiteralID()
			if !ok {
				continue
			}
			if _, declared := b.byID[id]; !declared {
				return nil, fmt.Errorf("step %q: %s references undeclared step %q", s.ID, name, id)
			}
		}
	}
	return steps, nil
}
