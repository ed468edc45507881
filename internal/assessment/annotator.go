// Package assessment attaches confidence thresholds and below-threshold
// alerts to LLM assessment results, and runs the per-section assessment
// stage end to end.
package assessment

import (
	"fmt"
	"sort"

	"idp/internal/schema"
	"idp/pkg/models"
)

// DefaultConfidence is the fail-open confidence assigned when the LLM
// returned a malformed value for an attribute. The attribute is kept with
// an explanatory reason rather than silently dropped.
const DefaultConfidence = 0.5

// Annotate walks an assessment result shaped like the attribute schema
// (flat map, nested group map, or list of item maps), injects the
// schema-resolved confidence_threshold into every leaf carrying a
// confidence, and collects an alert for every leaf whose confidence falls
// below its threshold. Threshold resolution for nested values stays keyed
// by the outer attribute name, mirroring the schema's one-level nesting.
//
// Annotate is pure: it builds a new structure and never mutates its input.
// No attribute name present in the input is ever dropped from the output.
func Annotate(data map[string]any, attrs []schema.Attribute, defaultThreshold float64) (map[string]any, []models.ConfidenceAlert) {
	annotated := make(map[string]any, len(data))
	var alerts []models.ConfidenceAlert

	for _, name := range sortedKeys(data) {
		value := data[name]
		threshold := schema.Threshold(name, attrs, defaultThreshold)

		attrType := schema.TypeSimple
		if attr, ok := schema.FindAttribute(name, attrs); ok {
			attrType = attr.Type()
		}

		switch typed := value.(type) {
		case map[string]any:
			if _, hasConfidence := typed["confidence"]; hasConfidence {
				annotated[name] = annotateLeaf(name, typed, threshold, &alerts)
			} else {
				annotated[name] = annotateGroup(name, typed, threshold, &alerts)
			}
		case []any:
			if attrType == schema.TypeList {
				annotated[name] = annotateList(name, typed, threshold, &alerts)
			} else {
				// A list where the schema expects a scalar is malformed.
				annotated[name] = syntheticLeaf(name, value, threshold, &alerts)
			}
		default:
			annotated[name] = syntheticLeaf(name, value, threshold, &alerts)
		}
	}

	return annotated, alerts
}

// DefaultStructure builds the fail-open assessment payload used when the
// LLM response could not be parsed at all: one synthetic leaf per
// configured top-level attribute.
func DefaultStructure(attrs []schema.Attribute, reason string) map[string]any {
	data := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		data[attr.Name] = map[string]any{
			"confidence":        DefaultConfidence,
			"confidence_reason": reason,
		}
	}
	return data
}

// annotateLeaf copies one leaf, injects the threshold, and records an
// alert when confidence falls below it. A leaf whose confidence is not
// numeric is replaced wholesale with a synthetic default.
func annotateLeaf(alertName string, leaf map[string]any, threshold float64, alerts *[]models.ConfidenceAlert) map[string]any {
	confidence, ok := numeric(leaf["confidence"])
	if !ok {
		return syntheticLeaf(alertName, leaf["confidence"], threshold, alerts)
	}

	out := make(map[string]any, len(leaf)+1)
	for k, v := range leaf {
		out[k] = v
	}
	out["confidence_threshold"] = threshold

	if confidence < threshold {
		*alerts = append(*alerts, models.ConfidenceAlert{
			AttributeName:       alertName,
			Confidence:          confidence,
			ConfidenceThreshold: threshold,
		})
	}
	return out
}

// annotateGroup handles a nested group map: members that are confidence
// leaves are annotated under the outer attribute's threshold; deeper maps
// recurse; anything else is malformed and replaced.
func annotateGroup(outerName string, group map[string]any, threshold float64, alerts *[]models.ConfidenceAlert) map[string]any {
	out := make(map[string]any, len(group))
	for _, nested := range sortedKeys(group) {
		alertName := outerName + "." + nested
		switch typed := group[nested].(type) {
		case map[string]any:
			if _, hasConfidence := typed["confidence"]; hasConfidence {
				out[nested] = annotateLeaf(alertName, typed, threshold, alerts)
			} else {
				out[nested] = annotateGroup(alertName, typed, threshold, alerts)
			}
		default:
			out[nested] = syntheticLeaf(alertName, typed, threshold, alerts)
		}
	}
	return out
}

// annotateList annotates each element of a list attribute independently.
// Elements that are not maps are replaced with a synthetic default leaf,
// which still goes through the alert check.
func annotateList(outerName string, items []any, threshold float64, alerts *[]models.ConfidenceAlert) []any {
	out := make([]any, len(items))
	for i, item := range items {
		itemName := fmt.Sprintf("%s[%d]", outerName, i)
		if m, ok := item.(map[string]any); ok {
			out[i] = annotateGroup(itemName, m, threshold, alerts)
		} else {
			out[i] = syntheticLeaf(itemName, item, threshold, alerts)
		}
	}
	return out
}

// syntheticLeaf replaces a malformed value with the fail-open default,
// naming the observed type so the replacement is auditable. The default
// confidence is checked against the threshold explicitly, so a synthetic
// leaf typically raises an alert too.
func syntheticLeaf(alertName string, raw any, threshold float64, alerts *[]models.ConfidenceAlert) map[string]any {
	leaf := map[string]any{
		"confidence":           DefaultConfidence,
		"confidence_reason":    fmt.Sprintf("Malformed assessment value (%s) replaced with default confidence", jsonTypeName(raw)),
		"confidence_threshold": threshold,
	}
	if DefaultConfidence < threshold {
		*alerts = append(*alerts, models.ConfidenceAlert{
			AttributeName:       alertName,
			Confidence:          DefaultConfidence,
			ConfidenceThreshold: threshold,
		})
	}
	return leaf
}

func numeric(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	default:
		return 0, false
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
