package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleAttributes() []Attribute {
	return []Attribute{
		{
			Name:                "invoice_number",
			Description:         "The unique invoice identifier",
			ConfidenceThreshold: 0.95,
		},
		{
			Name:          "vendor",
			Description:   "Vendor name and address",
			AttributeType: TypeGroup,
			GroupAttributes: []Attribute{
				{Name: "vendor_name", Description: "Legal vendor name", ConfidenceThreshold: 0.85},
				{Name: "vendor_address", Description: "Vendor street address"},
			},
		},
		{
			Name:          "line_items",
			Description:   "All billed line items",
			AttributeType: TypeList,
			ListItemTemplate: &ListItemTemplate{
				ItemDescription: "One billed product or service row",
				ItemAttributes: []Attribute{
					{Name: "item_description", Description: "What was billed"},
					{Name: "item_amount", Description: "Row total", ConfidenceThreshold: "0.7"},
				},
			},
		},
	}
}

func TestFormatDescriptions(t *testing.T) {
	got := FormatDescriptions(sampleAttributes())

	want := "invoice_number\t[ The unique invoice identifier ]\n" +
		"vendor\t[ Vendor name and address ]\n" +
		"  - vendor_name\t[ Legal vendor name ]\n" +
		"  - vendor_address\t[ Vendor street address ]\n" +
		"line_items\t[ All billed line items ]\n" +
		"Each item: One billed product or service row\n" +
		"  - item_description\t[ What was billed ]\n" +
		"  - item_amount\t[ Row total ]"
	assert.Equal(t, want, got)
}

func TestFormatDescriptionsEmpty(t *testing.T) {
	assert.Equal(t, "", FormatDescriptions(nil))
	assert.Equal(t, "", FormatDescriptions([]Attribute{}))
}

func TestThreshold(t *testing.T) {
	attrs := sampleAttributes()

	tests := []struct {
		name     string
		attrName string
		def      float64
		want     float64
	}{
		{name: "top-level attribute", attrName: "invoice_number", def: 0.9, want: 0.95},
		{name: "group member", attrName: "vendor_name", def: 0.9, want: 0.85},
		{name: "group member without threshold inherits default", attrName: "vendor_address", def: 0.9, want: 0.9},
		{name: "list item attribute with string threshold", attrName: "item_amount", def: 0.9, want: 0.7},
		{name: "unknown attribute falls back to default", attrName: "does_not_exist", def: 0.42, want: 0.42},
		{name: "lookup is case-sensitive", attrName: "Invoice_Number", def: 0.42, want: 0.42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Threshold(tt.attrName, attrs, tt.def), 1e-9)
		})
	}
}

func TestThresholdIdempotent(t *testing.T) {
	attrs := sampleAttributes()
	first := Threshold("vendor_name", attrs, 0.9)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Threshold("vendor_name", attrs, 0.9))
	}
}

func TestFindAttribute(t *testing.T) {
	attrs := sampleAttributes()

	attr, ok := FindAttribute("line_items", attrs)
	assert.True(t, ok)
	assert.Equal(t, TypeList, attr.Type())

	attr, ok = FindAttribute("item_description", attrs)
	assert.True(t, ok)
	assert.Equal(t, TypeSimple, attr.Type())

	_, ok = FindAttribute("missing", attrs)
	assert.False(t, ok)
}

func TestSafeFloat(t *testing.T) {
	tests := []struct {
		name  string
		input any
		def   float64
		want  float64
	}{
		{name: "float64 passes through", input: 0.75, def: 0.5, want: 0.75},
		{name: "int converts", input: 1, def: 0.5, want: 1.0},
		{name: "numeric string parses", input: "0.65", def: 0.5, want: 0.65},
		{name: "padded numeric string parses", input: " 0.65 ", def: 0.5, want: 0.65},
		{name: "empty string degrades", input: "", def: 0.5, want: 0.5},
		{name: "non-numeric string degrades", input: "high", def: 0.5, want: 0.5},
		{name: "nil degrades", input: nil, def: 0.5, want: 0.5},
		{name: "bool degrades", input: true, def: 0.5, want: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SafeFloat(tt.input, tt.def), 1e-9)
		})
	}
}

func TestAttributeDefaults(t *testing.T) {
	attr := Attribute{Name: "bare"}
	assert.Equal(t, TypeSimple, attr.Type())
	assert.Equal(t, MethodLLM, attr.Method())
	assert.InDelta(t, DefaultEvaluationThreshold, attr.EvalThreshold(), 1e-9)
}
