package domain

import "time"

// FieldType enumerates the slot value types the schema supports.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeNumber FieldType = "number"
	FieldTypeBool   FieldType = "bool"
)

// FieldSpec describes one slot of an intent's input schema: its type, whether
// it is required, and the validation rule applied after type coercion.
type FieldSpec struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

// IntentDefinition is one entry of the fixed intent catalog. Immutable after
// registry load.
type IntentDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Fields      []FieldSpec `json:"fields"`
	Plan        PlanKind    `json:"plan"`
}

// Field returns the spec for a named field, if present.
func (d IntentDefinition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// IntentSummary is the compact catalog view handed to the understanding
// adapter so it can pick an intent and extract slots.
type IntentSummary struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Fields      []FieldSpec `json:"fields"`
}

// OperationRequest is a fully validated, safely executable operation. It is
// only ever constructed by the resolver after every required slot has passed
// validation; nothing else may build one.
type OperationRequest struct {
	IntentName     string         `json:"intent_name"`
	Slots          map[string]any `json:"slots"`
	ConversationID string         `json:"conversation_id"`
	RequestedAt    time.Time      `json:"requested_at"`
}

// StringSlot returns the named slot as a string, or "" when absent.
func (r OperationRequest) StringSlot(name string) string {
	if s, ok := r.Slots[name].(string); ok {
		return s
	}
	return ""
}
