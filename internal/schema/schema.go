// Package schema models document-class attribute schemas and the
// configuration document they are loaded from, and provides the lookups the
// assessment and evaluation services run against them: prompt-ready
// attribute descriptions, per-attribute confidence thresholds, and full
// attribute configuration records.
package schema

import "encoding/json"

// Attribute types. An attribute is a flat value (simple), a one-level nested
// object (group), or a repeated object (list).
const (
	TypeSimple = "simple"
	TypeGroup  = "group"
	TypeList   = "list"
)

// Evaluation methods an attribute can be configured with.
const (
	MethodExact     = "EXACT"
	MethodFuzzy     = "FUZZY"
	MethodNumeric   = "NUMERIC"
	MethodSemantic  = "SEMANTIC"
	MethodLLM       = "LLM"
	MethodHungarian = "HUNGARIAN"
)

// DefaultEvaluationThreshold applies when an attribute does not configure one.
const DefaultEvaluationThreshold = 0.8

// Attribute describes one extractable field of a document class.
//
// ConfidenceThreshold and EvaluationThreshold are kept loosely typed because
// configuration documents in the wild carry them as numbers, numeric strings
// or empty strings; resolve them through SafeFloat.
type Attribute struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// AttributeType is simple, group or list. Empty means simple.
	AttributeType string `json:"attribute_type,omitempty"`

	ConfidenceThreshold any `json:"confidence_threshold,omitempty"`

	EvaluationMethod    string `json:"evaluation_method,omitempty"` // Empty means LLM
	EvaluationThreshold any    `json:"evaluation_threshold,omitempty"`

	// ComparatorType names the pairwise method used inside a HUNGARIAN
	// assignment. Meaningless for other methods.
	ComparatorType string `json:"comparator_type,omitempty"`

	// GroupAttributes is set when AttributeType is group.
	GroupAttributes []Attribute `json:"group_attributes,omitempty"`

	// ListItemTemplate is set when AttributeType is list.
	ListItemTemplate *ListItemTemplate `json:"list_item_template,omitempty"`
}

// ListItemTemplate describes the shape of one element of a list attribute.
type ListItemTemplate struct {
	ItemDescription string      `json:"item_description,omitempty"`
	ItemAttributes  []Attribute `json:"item_attributes,omitempty"`
}

// Type returns the attribute type, defaulting to simple.
func (a Attribute) Type() string {
	if a.AttributeType == "" {
		return TypeSimple
	}
	return a.AttributeType
}

// Method returns the evaluation method, defaulting to LLM.
func (a Attribute) Method() string {
	if a.EvaluationMethod == "" {
		return MethodLLM
	}
	return a.EvaluationMethod
}

// EvalThreshold returns the evaluation threshold, defaulting to 0.8.
func (a Attribute) EvalThreshold() float64 {
	return SafeFloat(a.EvaluationThreshold, DefaultEvaluationThreshold)
}

// ItemAttributes returns the list-item attributes, or nil for non-list types.
func (a Attribute) ItemAttributes() []Attribute {
	if a.ListItemTemplate == nil {
		return nil
	}
	return a.ListItemTemplate.ItemAttributes
}

// SafeFloat coerces a loosely typed configuration value to a float64,
// degrading to def for nil, empty or non-numeric input rather than failing.
func SafeFloat(v any, def float64) float64 {
	switch val := v.(type) {
	case nil:
		return def
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return def
		}
		return f
	case string:
		return parseFloatOr(val, def)
	default:
		return def
	}
}
