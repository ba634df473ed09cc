package flow

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Checklist is the typed payload of a TypeChecklist step.
type Checklist struct {
	// DataKey is the context data key under which per-item state lives.
	DataKey string `json:"data_key" yaml:"data_key" mapstructure:"data_key"`

	// Items are the ordered item definitions.
	Items []ChecklistItem `json:"items" yaml:"items" mapstructure:"items"`

	// MinItemsToComplete, when > 0, replaces the mandatory-items rule:
	// the step is complete once that many eligible items are done.
	MinItemsToComplete int `json:"min_items_to_complete,omitempty" yaml:"min_items_to_complete,omitempty" mapstructure:"min_items_to_complete"`
}

// ChecklistItem defines a single checklist entry.
type ChecklistItem struct {
	ID    string `json:"id" yaml:"id" mapstructure:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty" mapstructure:"label"`

	// Mandatory defaults to true when unset.
	Mandatory *bool `json:"mandatory,omitempty" yaml:"mandatory,omitempty" mapstructure:"mandatory"`

	// Condition marks the item irrelevant when it evaluates false.
	Condition Condition `json:"-" yaml:"-" mapstructure:"-"`
}

// IsMandatory reports whether the item must be completed; unset means yes.
func (i ChecklistItem) IsMandatory() bool {
	return i.Mandatory == nil || *i.Mandatory
}

// Eligible reports whether the item's condition currently holds.
func (i ChecklistItem) Eligible(fc *Context) bool {
	if i.Condition == nil {
		return true
	}
	return i.Condition(fc)
}

// ItemState is the persisted completion state of one checklist item.
type ItemState struct {
	ID        string `json:"id" mapstructure:"id"`
	Completed bool   `json:"completed" mapstructure:"completed"`
}

// ChecklistProgress summarizes checklist completion over eligible items.
type ChecklistProgress struct {
	Completed  int  `json:"completed"`
	Total      int  `json:"total"`
	Percentage int  `json:"percentage"`
	IsComplete bool `json:"is_complete"`
}

// DecodeChecklist builds a Checklist from a generic payload map, as loaded
// from YAML or JSON flow definitions.
func DecodeChecklist(payload map[string]any) (*Checklist, error) {
	var cl Checklist
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cl,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("invalid checklist payload: %w", err)
	}
	return &cl, nil
}

// DecodeItemStates coerces a context value (typically []any of maps after
// a JSON round-trip) back into item states. A nil value or a decode
// failure yields (nil, false) so callers can re-initialize.
func DecodeItemStates(v any) ([]ItemState, bool) {
	if v == nil {
		return nil, false
	}
	if states, ok := v.([]ItemState); ok {
		return states, true
	}
	var out []ItemState
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, false
	}
	if err := dec.Decode(v); err != nil {
		return nil, false
	}
	return out, true
}
