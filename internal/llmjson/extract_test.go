package llmjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "fenced json block",
			input: "```json\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "fenced untagged block",
			input: "```\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "fenced block with surrounding prose",
			input: "Here is the result:\n```json\n{\"a\": 1}\n```\nLet me know if you need more.",
			want:  `{"a": 1}`,
		},
		{
			name:  "bare object with noise on both sides",
			input: `noise {"a": 1} noise`,
			want:  `{"a": 1}`,
		},
		{
			name:  "nested object selects the minimal matching span",
			input: `prefix {"a": {"b": 2}} suffix {`,
			want:  `{"a": {"b": 2}}`,
		},
		{
			name:  "whitespace between tokens is preserved verbatim",
			input: "{\"a\":\n1}",
			want:  "{\"a\":\n1}",
		},
		{
			name:  "brace inside string value falls back to outermost span",
			input: `{"a": "x}"}`,
			want:  `{"a": "x}"}`,
		},
		{
			name:  "not json at all returns input unchanged",
			input: "not json at all",
			want:  "not json at all",
		},
		{
			name:  "unbalanced braces return input unchanged",
			input: `{"a": 1`,
			want:  `{"a": 1`,
		},
		{
			name:  "empty input returns empty",
			input: "",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.input))
		})
	}
}

func TestExtractRepairsLiteralNewlineInString(t *testing.T) {
	input := "{\"reason\": \"value spans\ntwo lines\"}"

	got := Extract(input)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &parsed))
	assert.Equal(t, "value spans two lines", parsed["reason"])
}

func TestExtractRoundTrips(t *testing.T) {
	inputs := []string{
		"```json\n{\"a\": 1}\n```",
		"noise {\"a\": 1} noise",
		"{\"a\":\n1}",
	}
	for _, input := range inputs {
		var parsed map[string]any
		require.NoError(t, json.Unmarshal([]byte(Extract(input)), &parsed), "input %q", input)
		assert.Equal(t, map[string]any{"a": float64(1)}, parsed, "input %q", input)
	}
}

func TestParseObject(t *testing.T) {
	outcome := ParseObject("```json\n{\"confidence\": 0.9}\n```")
	require.True(t, outcome.Succeeded)
	assert.Equal(t, 0.9, outcome.Value["confidence"])

	outcome = ParseObject("the model refused to answer")
	assert.False(t, outcome.Succeeded)
	assert.Nil(t, outcome.Value)
	assert.Equal(t, "the model refused to answer", outcome.Raw)
}

func TestParseObjectArrayWrappedObject(t *testing.T) {
	// An array-wrapped response yields its first embedded object.
	outcome := ParseObject(`[{"a": 1}]`)
	require.True(t, outcome.Succeeded)
	assert.Equal(t, map[string]any{"a": float64(1)}, outcome.Value)
}
