package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/rs/zerolog"

	"idp/internal/config"
	"idp/internal/llm"
	"idp/internal/llmjson"
	"idp/internal/logger"
	"idp/internal/prompt"
	"idp/internal/schema"
	"idp/internal/semantic"
)

// defaultJudgeTemplate is the judge prompt used when the configuration
// document does not supply an evaluation task prompt. The response contract
// is a bare JSON object so the repair parser can always find it.
const defaultJudgeTemplate = `You are comparing an extracted value against its expected value for the attribute "{ATTRIBUTE_NAME}" ({ATTRIBUTE_DESCRIPTION}) of a {DOCUMENT_CLASS} document.

Expected value: {EXPECTED_VALUE}
Actual value: {ACTUAL_VALUE}

Judge whether the actual value conveys the same information as the expected value, tolerating formatting differences. Respond with only a JSON object of the form {"match": true, "score": 0.95, "reason": "short explanation"}.`

// CompareSpec carries the method and context for one comparison.
type CompareSpec struct {
	Method    string
	Threshold float64

	// ComparatorType is the pairwise method used inside a HUNGARIAN
	// assignment; empty means EXACT.
	ComparatorType string

	// ItemAttributes, when set, names the fields compared per list item in a
	// HUNGARIAN assignment. When empty the union of item keys is used.
	ItemAttributes []schema.Attribute

	// CaseSensitive controls EXACT equality.
	CaseSensitive bool

	// Judge context, used by the LLM method.
	DocumentClass        string
	AttributeName        string
	AttributeDescription string
}

// PairScore is one pairing chosen by a HUNGARIAN assignment.
type PairScore struct {
	ExpectedIndex int     `json:"expected_index"`
	ActualIndex   int     `json:"actual_index"`
	Score         float64 `json:"score"`
	Matched       bool    `json:"matched"`
}

// Comparison is the outcome of comparing one attribute.
//
// Counts is populated on every path, including the blank-value preconditions
// and the per-pair expansion of HUNGARIAN assignments, so the aggregation
// layer only ever adds tuples.
type Comparison struct {
	Matched bool
	Score   float64
	Reason  string

	Counts ConfusionCounts
	Usage  llm.Usage

	// HUNGARIAN details.
	Pairs             []PairScore
	UnmatchedExpected int
	UnmatchedActual   int
}

// Comparator implements the evaluation methods. The LLM transport and the
// embedder are injected so tests can substitute fakes.
type Comparator struct {
	invoker  llm.Invoker
	embedder semantic.Embedder
	cfg      *config.Config
	judge    schema.PromptConfig
	log      zerolog.Logger
}

// NewComparator builds a comparator. judge supplies the evaluation model and
// prompt settings from the configuration document; zero fields fall back to
// the process configuration and the built-in judge template.
func NewComparator(invoker llm.Invoker, embedder semantic.Embedder, cfg *config.Config, judge schema.PromptConfig) *Comparator {
	return &Comparator{
		invoker:  invoker,
		embedder: embedder,
		cfg:      cfg,
		judge:    judge,
		log:      logger.WithComponent("evaluation"),
	}
}

// Compare evaluates expected against actual. Blank-value preconditions are
// checked before method dispatch:
//
//  1. both blank       -> matched, score 1.0 (tn)
//  2. expected blank   -> not matched, score 0.0 (fp1)
//  3. actual blank     -> not matched, score 0.0 (fn)
//  4. both present     -> dispatch on spec.Method
//
// Transport and embedding failures surface as errors for the caller to
// handle as task failures; malformed judge output never does.
func (c *Comparator) Compare(ctx context.Context, expected, actual any, spec CompareSpec) (Comparison, error) {
	expectedPresent := !isBlank(expected)
	actualPresent := !isBlank(actual)

	switch {
	case !expectedPresent && !actualPresent:
		return Comparison{
			Matched: true,
			Score:   1.0,
			Reason:  "Both expected and actual values are empty; counted as a match",
			Counts:  ConfusionCounts{TN: 1},
		}, nil
	case !expectedPresent:
		return Comparison{
			Reason: "No value expected but one was extracted",
			Counts: ConfusionCounts{FP1: 1},
		}, nil
	case !actualPresent:
		return Comparison{
			Reason: "A value was expected but none was extracted",
			Counts: ConfusionCounts{FN: 1},
		}, nil
	}

	switch spec.Method {
	case schema.MethodExact:
		return c.compareExact(expected, actual, spec), nil
	case schema.MethodFuzzy:
		return c.compareFuzzy(expected, actual, spec), nil
	case schema.MethodNumeric:
		return c.compareNumeric(expected, actual, spec), nil
	case schema.MethodSemantic:
		return c.compareSemantic(ctx, expected, actual, spec)
	case schema.MethodHungarian:
		return c.compareHungarian(ctx, expected, actual, spec)
	case schema.MethodLLM, "":
		return c.compareLLM(ctx, expected, actual, spec)
	default:
		return Comparison{}, fmt.Errorf("evaluation: unsupported method %q for attribute %q", spec.Method, spec.AttributeName)
	}
}

func (c *Comparator) compareExact(expected, actual any, spec CompareSpec) Comparison {
	e, a := stringify(expected), stringify(actual)
	if !spec.CaseSensitive {
		e, a = strings.ToLower(e), strings.ToLower(a)
	}

	cmp := Comparison{Matched: e == a}
	if cmp.Matched {
		cmp.Score = 1.0
		cmp.Reason = "Exact string match"
		cmp.Counts = ConfusionCounts{TP: 1}
	} else {
		cmp.Reason = fmt.Sprintf("Values differ: %q vs %q", stringify(expected), stringify(actual))
		cmp.Counts = ConfusionCounts{FP2: 1}
	}
	return cmp
}

func (c *Comparator) compareFuzzy(expected, actual any, spec CompareSpec) Comparison {
	e := normalizeForFuzzy(stringify(expected))
	a := normalizeForFuzzy(stringify(actual))

	score := strutil.Similarity(e, a, metrics.NewLevenshtein())
	cmp := Comparison{
		Matched: score >= spec.Threshold,
		Score:   score,
		Reason:  fmt.Sprintf("String similarity %.3f against threshold %.2f", score, spec.Threshold),
	}
	cmp.Counts = countsForVerdict(cmp.Matched)
	return cmp
}

func (c *Comparator) compareNumeric(expected, actual any, spec CompareSpec) Comparison {
	e, okE := parseNumber(expected)
	a, okA := parseNumber(actual)
	if !okE || !okA {
		return Comparison{
			Reason: fmt.Sprintf("Not numeric: %q vs %q", stringify(expected), stringify(actual)),
			Counts: ConfusionCounts{FP2: 1},
		}
	}

	var score float64
	switch {
	case e == a:
		score = 1.0
	case e == 0:
		score = 0.0
	default:
		relErr := (e - a) / e
		if relErr < 0 {
			relErr = -relErr
		}
		if relErr > 1 {
			relErr = 1
		}
		score = 1 - relErr
	}

	cmp := Comparison{
		Matched: score >= spec.Threshold,
		Score:   score,
		Reason:  fmt.Sprintf("Numeric comparison of %g vs %g scored %.3f against threshold %.2f", e, a, score, spec.Threshold),
	}
	cmp.Counts = countsForVerdict(cmp.Matched)
	return cmp
}

func (c *Comparator) compareSemantic(ctx context.Context, expected, actual any, spec CompareSpec) (Comparison, error) {
	const op = "compareSemantic"

	if c.embedder == nil {
		return Comparison{}, fmt.Errorf("evaluation: %s: no embedder configured", op)
	}

	ev, err := c.embedder.Embed(ctx, stringify(expected))
	if err != nil {
		return Comparison{}, fmt.Errorf("evaluation: %s: embed expected value: %w", op, err)
	}
	av, err := c.embedder.Embed(ctx, stringify(actual))
	if err != nil {
		return Comparison{}, fmt.Errorf("evaluation: %s: embed actual value: %w", op, err)
	}

	score := semantic.Cosine(ev, av)
	cmp := Comparison{
		Matched: score >= spec.Threshold,
		Score:   score,
		Reason:  fmt.Sprintf("Embedding cosine similarity %.3f against threshold %.2f", score, spec.Threshold),
	}
	cmp.Counts = countsForVerdict(cmp.Matched)
	return cmp, nil
}

// compareLLM asks the judge model for a verdict. A response that cannot be
// parsed as JSON fails safe to not-matched with a reason noting the parse
// failure; it never surfaces as an error.
func (c *Comparator) compareLLM(ctx context.Context, expected, actual any, spec CompareSpec) (Comparison, error) {
	const op = "compareLLM"

	template := c.judge.TaskPrompt
	if template == "" {
		template = defaultJudgeTemplate
	}
	text, err := prompt.Format(template, map[string]string{
		"DOCUMENT_CLASS":        spec.DocumentClass,
		"ATTRIBUTE_NAME":        spec.AttributeName,
		"ATTRIBUTE_DESCRIPTION": spec.AttributeDescription,
		"EXPECTED_VALUE":        stringify(expected),
		"ACTUAL_VALUE":          stringify(actual),
	}, nil)
	if err != nil {
		return Comparison{}, fmt.Errorf("evaluation: %s: %w", op, err)
	}

	req := llm.Request{
		ModelID:     c.judge.ModelID,
		System:      c.judge.SystemPrompt,
		Content:     []llm.ContentBlock{llm.TextBlock(text)},
		Temperature: c.judge.Temperature,
		TopP:        c.judge.TopP,
		TopK:        c.judge.TopK,
		MaxTokens:   c.judge.MaxTokens,
	}
	if req.ModelID == "" {
		req.ModelID = c.cfg.EvaluationModelID
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}

	resp, err := c.invoker.Converse(ctx, req)
	if err != nil {
		return Comparison{}, fmt.Errorf("evaluation: %s: attribute %q: %w", op, spec.AttributeName, err)
	}

	outcome := llmjson.ParseObject(resp.Text)
	if !outcome.Succeeded {
		c.log.Warn().
			Str("attribute", spec.AttributeName).
			Msg("Judge response did not parse as JSON, treating as no match")
		return Comparison{
			Reason: "Judge response could not be parsed as JSON",
			Counts: ConfusionCounts{FP2: 1},
			Usage:  resp.Usage,
		}, nil
	}

	matched, _ := outcome.Value["match"].(bool)
	cmp := Comparison{
		Matched: matched,
		Score:   schema.SafeFloat(outcome.Value["score"], 0),
		Usage:   resp.Usage,
	}
	if reason, ok := outcome.Value["reason"].(string); ok && reason != "" {
		cmp.Reason = reason
	} else {
		cmp.Reason = "Judge returned no reason"
	}
	cmp.Counts = countsForVerdict(cmp.Matched)
	return cmp, nil
}

// compareHungarian pairs expected and actual list items by optimal
// assignment over a pairwise similarity matrix, then scores the chosen
// pairing. Unmatched expected items count as misses and unmatched actual
// items as hallucinations; both are expanded into Counts per item.
func (c *Comparator) compareHungarian(ctx context.Context, expected, actual any, spec CompareSpec) (Comparison, error) {
	const op = "compareHungarian"

	expectedItems, err := asList(expected)
	if err != nil {
		return Comparison{}, fmt.Errorf("evaluation: %s: expected value: %w", op, err)
	}
	actualItems, err := asList(actual)
	if err != nil {
		return Comparison{}, fmt.Errorf("evaluation: %s: actual value: %w", op, err)
	}

	var usage llm.Usage
	sim := make([][]float64, len(expectedItems))
	for i, expectedItem := range expectedItems {
		sim[i] = make([]float64, len(actualItems))
		for j, actualItem := range actualItems {
			score, itemUsage, err := c.compareItems(ctx, expectedItem, actualItem, spec)
			if err != nil {
				return Comparison{}, fmt.Errorf("evaluation: %s: item pair (%d,%d): %w", op, i, j, err)
			}
			sim[i][j] = score
			usage.Add(itemUsage)
		}
	}

	assignment := Assign(sim)

	cmp := Comparison{Usage: usage}
	pairedActual := make(map[int]bool, len(actualItems))
	var totalScore float64

	for i, j := range assignment {
		if j < 0 {
			cmp.UnmatchedExpected++
			cmp.Counts.FN++
			continue
		}
		pairedActual[j] = true
		pair := PairScore{
			ExpectedIndex: i,
			ActualIndex:   j,
			Score:         sim[i][j],
			Matched:       sim[i][j] >= spec.Threshold,
		}
		cmp.Pairs = append(cmp.Pairs, pair)
		totalScore += pair.Score
		if pair.Matched {
			cmp.Counts.TP++
		} else {
			cmp.Counts.FP2++
		}
	}
	for j := range actualItems {
		if !pairedActual[j] {
			cmp.UnmatchedActual++
			cmp.Counts.FP1++
		}
	}

	matchedPairs := 0
	for _, pair := range cmp.Pairs {
		if pair.Matched {
			matchedPairs++
		}
	}
	if len(cmp.Pairs) > 0 {
		cmp.Score = totalScore / float64(len(cmp.Pairs))
	}
	cmp.Matched = matchedPairs == len(cmp.Pairs) && cmp.UnmatchedExpected == 0 && cmp.UnmatchedActual == 0
	cmp.Reason = fmt.Sprintf("%d/%d pairs matched, %d expected item(s) unmatched, %d actual item(s) unmatched",
		matchedPairs, len(cmp.Pairs), cmp.UnmatchedExpected, cmp.UnmatchedActual)
	return cmp, nil
}

// compareItems scores one expected/actual item pair using the configured
// pairwise method, averaging per-field scores for structured items.
func (c *Comparator) compareItems(ctx context.Context, expectedItem, actualItem any, spec CompareSpec) (float64, llm.Usage, error) {
	pairwise := spec.ComparatorType
	if pairwise == "" {
		pairwise = schema.MethodExact
	}
	fieldSpec := CompareSpec{
		Method:               pairwise,
		Threshold:            spec.Threshold,
		CaseSensitive:        spec.CaseSensitive,
		DocumentClass:        spec.DocumentClass,
		AttributeName:        spec.AttributeName,
		AttributeDescription: spec.AttributeDescription,
	}

	expectedMap, okE := expectedItem.(map[string]any)
	actualMap, okA := actualItem.(map[string]any)
	if !okE || !okA {
		cmp, err := c.Compare(ctx, expectedItem, actualItem, fieldSpec)
		if err != nil {
			return 0, llm.Usage{}, err
		}
		return cmp.Score, cmp.Usage, nil
	}

	fields := itemFields(spec.ItemAttributes, expectedMap, actualMap)
	if len(fields) == 0 {
		return 1.0, llm.Usage{}, nil
	}

	var total float64
	var usage llm.Usage
	for _, field := range fields {
		fieldSpec.AttributeName = spec.AttributeName + "." + field
		cmp, err := c.Compare(ctx, expectedMap[field], actualMap[field], fieldSpec)
		if err != nil {
			return 0, usage, fmt.Errorf("field %q: %w", field, err)
		}
		total += cmp.Score
		usage.Add(cmp.Usage)
	}
	return total / float64(len(fields)), usage, nil
}

// itemFields resolves the per-item fields to compare: the configured item
// attributes when present, otherwise the sorted union of both items' keys.
func itemFields(attrs []schema.Attribute, expected, actual map[string]any) []string {
	if len(attrs) > 0 {
		fields := make([]string, len(attrs))
		for i, attr := range attrs {
			fields[i] = attr.Name
		}
		return fields
	}

	union := make(map[string]any, len(expected)+len(actual))
	for k := range expected {
		union[k] = nil
	}
	for k := range actual {
		union[k] = nil
	}
	return sortedKeys(union)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func countsForVerdict(matched bool) ConfusionCounts {
	if matched {
		return ConfusionCounts{TP: 1}
	}
	return ConfusionCounts{FP2: 1}
}

// isBlank reports whether a value counts as absent: nil, whitespace-only
// string, or an empty list/map.
func isBlank(v any) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case []any:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	default:
		return false
	}
}

// stringify renders a value for string comparison and prompt embedding.
func stringify(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case bool:
		return strconv.FormatBool(typed)
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(data)
	}
}

// normalizeForFuzzy lowercases and collapses whitespace so similarity
// reflects content, not casing or spacing.
func normalizeForFuzzy(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// parseNumber extracts a float from a possibly currency-formatted value.
func parseNumber(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case string:
		cleaned := strings.TrimSpace(typed)
		cleaned = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", ",", "", " ", "").Replace(cleaned)
		cleaned = strings.TrimSuffix(cleaned, "%")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// asList coerces a value to a slice of items for HUNGARIAN comparison.
func asList(v any) ([]any, error) {
	switch typed := v.(type) {
	case []any:
		return typed, nil
	case []map[string]any:
		items := make([]any, len(typed))
		for i, m := range typed {
			items[i] = m
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}
