// Package llmjson extracts JSON objects from free-form LLM output.
//
// Model responses wrap JSON in fenced code blocks, surround it with prose,
// or break it with literal newlines inside string values. Extract applies a
// layered fallback strategy and never fails on malformed input; it degrades
// to returning the original text so the caller can substitute a default
// structure.
package llmjson

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedRe     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Outcome is the result of a best-effort parse. When Succeeded is false,
// Value is nil and Raw holds the original text for diagnostics.
type Outcome struct {
	Value     map[string]any
	Raw       string
	Succeeded bool
}

// Extract pulls a single JSON object out of text. For well-formed fenced or
// bare JSON the returned string is the minimal exact span; for malformed
// input it returns text unchanged. It never panics or returns an error.
func Extract(text string) string {
	// Strategy 1: fenced code block, tagged json or untagged.
	if m := fencedRe.FindStringSubmatch(text); len(m) > 1 {
		if candidate := strings.TrimSpace(m[1]); isObject(candidate) {
			return candidate
		}
	}

	// Strategy 2: first brace to its depth-matched closer.
	if candidate, ok := matchBraces(text); ok && isObject(candidate) {
		return candidate
	}

	// Strategy 3: outermost span between the first { and the last },
	// progressively repaired.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		span := text[start : end+1]
		if isObject(span) {
			return span
		}
		// Literal newlines inside string values are a known LLM failure
		// mode; joining lines with single spaces repairs them.
		joined := strings.Join(strings.Split(span, "\n"), " ")
		if isObject(joined) {
			return joined
		}
		collapsed := whitespaceRe.ReplaceAllString(span, " ")
		if isObject(collapsed) {
			return collapsed
		}
	}

	return text
}

// ParseObject runs Extract and decodes the result. Parse failure is
// reported in the outcome, never as an error.
func ParseObject(text string) Outcome {
	candidate := Extract(text)

	var value map[string]any
	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return Outcome{Raw: text}
	}
	return Outcome{Value: value, Raw: candidate, Succeeded: true}
}

// matchBraces returns the substring from the first { to the } that closes
// it, counting depth. The scan is deliberately not string-aware; when a
// brace inside a string value truncates the span, the outermost-span
// strategy picks up the slack.
func matchBraces(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func isObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}
