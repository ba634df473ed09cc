// Package flowfile loads flow definitions from YAML or JSON files.
//
// File-defined flows cover the declarative subset of the model: literal
// references, equality-based conditions and checklists. Computed
// references and lifecycle hooks require the Go DSL.
package flowfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/sherpa/pkg/flow"
)

// File is the top-level shape of a flow definition file.
type File struct {
	Name        string     `yaml:"name" json:"name"`
	InitialStep string     `yaml:"initial_step" json:"initial_step"`
	Steps       []StepFile `yaml:"steps" json:"steps"`
}

// StepFile is the declarative shape of one step.
type StepFile struct {
	ID        string         `yaml:"id" json:"id"`
	Type      string         `yaml:"type" json:"type"`
	Payload   map[string]any `yaml:"payload" json:"payload"`
	Next      string         `yaml:"next" json:"next"`
	Prev      string         `yaml:"prev" json:"prev"`
	SkipTo    string         `yaml:"skip_to" json:"skip_to"`
	Skippable bool           `yaml:"skippable" json:"skippable"`
	Terminal  bool           `yaml:"terminal" json:"terminal"`

	Condition *ConditionFile `yaml:"condition" json:"condition"`
	Checklist *ChecklistFile `yaml:"checklist" json:"checklist"`
}

// ConditionFile declares an equality condition on a context data key.
type ConditionFile struct {
	Key    string `yaml:"key" json:"key"`
	Equals any    `yaml:"equals" json:"equals"`
	Exists *bool  `yaml:"exists" json:"exists"`
}

// ChecklistFile mirrors flow.Checklist with declarative item conditions.
type ChecklistFile struct {
	DataKey            string              `yaml:"data_key" json:"data_key"`
	MinItemsToComplete int                 `yaml:"min_items_to_complete" json:"min_items_to_complete"`
	Items              []ChecklistItemFile `yaml:"items" json:"items"`
}

// ChecklistItemFile mirrors flow.ChecklistItem.
type ChecklistItemFile struct {
	ID        string         `yaml:"id" json:"id"`
	Label     string         `yaml:"label" json:"label"`
	Mandatory *bool          `yaml:"mandatory" json:"mandatory"`
	Condition *ConditionFile `yaml:"condition" json:"condition"`
}

// Load reads and compiles a flow definition file. The extension selects
// the format: .json is JSON, everything else parses as YAML.
func Load(path string) (*File, []flow.Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse compiles raw bytes into a flow definition.
func Parse(data []byte, ext string) (*File, []flow.Step, error) {
	var f File
	if strings.ToLower(ext) == ".json" {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, nil, fmt.Errorf("failed to parse flow json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, nil, fmt.Errorf("failed to parse flow yaml: %w", err)
		}
	}

	steps, err := f.Compile()
	if err != nil {
		return nil, nil, err
	}
	return &f, steps, nil
}

// Compile converts the declarative file shape into step definitions.
func (f *File) Compile() ([]flow.Step, error) {
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("flow %q has no steps", f.Name)
	}

	steps := make([]flow.Step, 0, len(f.Steps))
	for _, sf := range f.Steps {
		step, err := sf.compile()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (sf StepFile) compile() (flow.Step, error) {
	if sf.ID == "" {
		return flow.Step{}, fmt.Errorf("step missing id")
	}
	if sf.Terminal && sf.Next != "" {
		return flow.Step{}, fmt.Errorf("step %q: terminal and next are mutually exclusive", sf.ID)
	}

	step := flow.Step{
		ID:        sf.ID,
		Type:      flow.StepType(sf.Type),
		Payload:   sf.Payload,
		Skippable: sf.Skippable,
	}

	if sf.Terminal {
		step.Next = flow.RefEnd()
	} else if sf.Next != "" {
		step.Next = flow.RefTo(sf.Next)
	}
	if sf.Prev != "" {
		step.Prev = flow.RefTo(sf.Prev)
	}
	if sf.SkipTo != "" {
		step.SkipTo = flow.RefTo(sf.SkipTo)
		step.Skippable = true
	}
	if sf.Condition != nil {
		cond, err := sf.Condition.compile()
		if err != nil {
			return flow.Step{}, fmt.Errorf("step %q: %w", sf.ID, err)
		}
		step.Condition = cond
	}
	if sf.Checklist != nil {
		cl, err := sf.Checklist.compile()
		if err != nil {
			return flow.Step{}, fmt.Errorf("step %q: %w", sf.ID, err)
		}
		step.Checklist = cl
		if step.Type == "" {
			step.Type = flow.TypeChecklist
		}
	}
	return step, nil
}

func (cf *ConditionFile) compile() (flow.Condition, error) {
	if cf.Key == "" {
		return nil, fmt.Errorf("condition missing key")
	}
	key := cf.Key

	if cf.Exists != nil {
		want := *cf.Exists
		return func(fc *flow.Context) bool {
			_, ok := fc.Value(key)
			return ok == want
		}, nil
	}

	want := cf.Equals
	return func(fc *flow.Context) bool {
		got, ok := fc.Value(key)
		return ok && looselyEqual(got, want)
	}, nil
}

func (clf *ChecklistFile) compile() (*flow.Checklist, error) {
	if clf.DataKey == "" {
		return nil, fmt.Errorf("checklist missing data_key")
	}
	cl := &flow.Checklist{
		DataKey:            clf.DataKey,
		MinItemsToComplete: clf.MinItemsToComplete,
	}
	for _, itf := range clf.Items {
		if itf.ID == "" {
			return nil, fmt.Errorf("checklist item missing id")
		}
		item := flow.ChecklistItem{
			ID:        itf.ID,
			Label:     itf.Label,
			Mandatory: itf.Mandatory,
		}
		if itf.Condition != nil {
			cond, err := itf.Condition.compile()
			if err != nil {
				return nil, fmt.Errorf("item %q: %w", itf.ID, err)
			}
			item.Condition = cond
		}
		cl.Items = append(cl.Items, item)
	}
	return cl, nil
}

// looselyEqual compares values across the numeric representations that
// YAML, JSON and live Go data produce for the same logical value.
func looselyEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
