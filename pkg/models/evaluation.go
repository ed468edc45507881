package models

// EvaluationAttributeResult is the outcome of comparing one attribute's
// expected value against the extracted value for one section. Created once
// during evaluation and immutable thereafter.
type EvaluationAttributeResult struct {
	Name    string `json:"name"`
	Expected any   `json:"expected"`
	Actual   any   `json:"actual"`
	Matched  bool  `json:"matched"`

	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`

	EvaluationMethod string `json:"evaluation_method"`

	// EvaluationThreshold is emitted only for methods where a threshold
	// shaped the verdict (FUZZY, SEMANTIC, HUNGARIAN with a FUZZY comparator).
	EvaluationThreshold *float64 `json:"evaluation_threshold,omitempty"`

	// ComparatorType is emitted only for HUNGARIAN, naming the pairwise
	// method used inside the assignment.
	ComparatorType string `json:"comparator_type,omitempty"`
}

// Metrics are the derived accuracy figures for one confusion-count tuple.
type Metrics struct {
	Precision          float64 `json:"precision"`
	Recall             float64 `json:"recall"`
	F1                 float64 `json:"f1"`
	Accuracy           float64 `json:"accuracy"`
	FalseAlarmRate     float64 `json:"false_alarm_rate"`
	FalseDiscoveryRate float64 `json:"false_discovery_rate"`

	// Raw counts the metrics were derived from. FP = FP1 + FP2.
	TruePositives   int `json:"true_positives"`
	FalsePositives  int `json:"false_positives"`
	FalseNegatives  int `json:"false_negatives"`
	TrueNegatives   int `json:"true_negatives"`
	FalsePositives1 int `json:"false_positives_1"` // Predicted where none expected
	FalsePositives2 int `json:"false_positives_2"` // Predicted a wrong value
}

// SectionEvaluationResult aggregates one section's attribute comparisons.
// Attributes are ordered by name for reproducible output.
type SectionEvaluationResult struct {
	SectionID     string                      `json:"section_id"`
	DocumentClass string                      `json:"document_class"`
	Attributes    []EvaluationAttributeResult `json:"attributes"`
	Metrics       Metrics                     `json:"metrics"`
}

// TokenUsage accumulates LLM token consumption across evaluation tasks.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// DocumentEvaluationResult is the terminal evaluation artifact for one
// document, serialized to results.json and rendered to report.md.
type DocumentEvaluationResult struct {
	DocumentID string                    `json:"document_id"`
	Sections   []SectionEvaluationResult `json:"sections"` // Ordered by section ID
	Metrics    Metrics                   `json:"metrics"`  // Document-level aggregate

	ExecutionTime float64    `json:"execution_time"` // Seconds
	Usage         TokenUsage `json:"usage"`
	Errors        []string   `json:"errors,omitempty"`
}
