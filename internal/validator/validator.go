// Package validator checks flow definitions for structural defects
// before an engine is built over them: duplicate IDs, dangling literal
// references and malformed checklists.
package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/sherpa/pkg/flow"
)

// ValidateSteps inspects a step sequence and returns an aggregate error
// describing every defect found, or nil.
func ValidateSteps(steps []flow.Step) error {
	var problems []string

	if len(steps) == 0 {
		return fmt.Errorf("flow has no steps")
	}

	index := make(map[string]bool, len(steps))
	for i := range steps {
		s := &steps[i]
		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("step at index %d has no id", i))
			continue
		}
		if index[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate step id %q", s.ID))
		}
		index[s.ID] = true
	}

	for i := range steps {
		s := &steps[i]
		problems = append(problems, checkRefs(s, index)...)
		problems = append(problems, checkChecklist(s)...)
	}

	if len(problems) > 0 {
		return fmt.Errorf("found %d problems:\n- %s", len(problems), strings.Join(problems, "\n- "))
	}
	return nil
}

func checkRefs(s *flow.Step, index map[string]bool) []string {
	var problems []string
	for name, ref := range map[string]flow.Ref{"next": s.Next, "prev": s.Prev, "skip_to": s.SkipTo} {
		id, ok := ref.LiteralID()
		if !ok {
			continue
		}
		if id == "" {
			problems = append(problems, fmt.Sprintf("step %q: %s references an empty id", s.ID, name))
			continue
		}
		if !index[id] {
			problems = append(problems, fmt.Sprintf("step %q: %s references unknown step %q", s.ID, name, id))
		}
		if id == s.ID {
			problems = append(problems, fmt.Sprintf("step %q: %s references itself", s.ID, name))
		}
	}
	if !s.SkipTo.IsZero() && !s.Skippable {
		problems = append(problems, fmt.Sprintf("step %q: skip_to set but step is not skippable", s.ID))
	}
	return problems
}

func checkChecklist(s *flow.Step) []string {
	var problems []string

	if s.Type == flow.TypeChecklist && s.Checklist == nil {
		return []string{fmt.Sprintf("step %q: checklist step without checklist definition", s.ID)}
	}
	cl := s.Checklist
	if cl == nil {
		return nil
	}

	if cl.DataKey == "" {
		problems = append(problems, fmt.Sprintf("step %q: checklist has no data_key", s.ID))
	}
	if len(cl.Items) == 0 {
		problems = append(problems, fmt.Sprintf("step %q: checklist has no items", s.ID))
	}

	seen := make(map[string]bool, len(cl.Items))
	for _, item := range cl.Items {
		if item.ID == "" {
			problems = append(problems, fmt.Sprintf("step %q: checklist item without id", s.ID))
			continue
		}
		if seen[item.ID] {
			problems = append(problems, fmt.Sprintf("step %q: duplicate checklist item %q", s.ID, item.ID))
		}
		seen[item.ID] = true
	}

	if cl.MinItemsToComplete < 0 {
		problems = append(problems, fmt.Sprintf("step %q: negative min_items_to_complete", s.ID))
	}
	if cl.MinItemsToComplete > len(cl.Items) {
		problems = append(problems, fmt.Sprintf("step %q: min_items_to_complete %d exceeds %d items",
			s.ID, cl.MinItemsToComplete, len(cl.Items)))
	}
	return problems
}
