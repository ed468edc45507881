package schema

import (
	"context"
	"fmt"
	"strings"

	"idp/internal/s3store"
)

// FewShotExample is one worked example spliced into a prompt at the
// {FEW_SHOT_EXAMPLES} placeholder.
type FewShotExample struct {
	Name      string   `json:"name,omitempty"`
	Prompt    string   `json:"prompt"`
	ImageURIs []string `json:"image_uris,omitempty"`
}

// Class binds a document class name to its attribute schema.
type Class struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Attributes  []Attribute      `json:"attributes"`
	Examples    []FewShotExample `json:"examples,omitempty"`
}

// PromptConfig configures one LLM-backed stage.
type PromptConfig struct {
	ModelID      string  `json:"model_id"`
	SystemPrompt string  `json:"system_prompt"`
	TaskPrompt   string  `json:"task_prompt"`
	Temperature  float64 `json:"temperature,omitempty"`
	TopP         float64 `json:"top_p,omitempty"`
	TopK         int     `json:"top_k,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

// Config is the configuration document backing one run: the document
// classes with their attribute schemas, plus per-stage prompt settings.
// Immutable during a single document's processing; reloaded between runs
// when the backing document changes.
type Config struct {
	Classes    []Class      `json:"classes"`
	Assessment PromptConfig `json:"assessment"`
	Evaluation PromptConfig `json:"evaluation"`

	DefaultConfidenceThreshold any `json:"default_confidence_threshold,omitempty"`
}

// Load reads and validates a configuration document from the store.
func Load(ctx context.Context, store s3store.Store, uri string) (*Config, error) {
	const op = "Load"

	var cfg Config
	if err := store.ReadJSON(ctx, uri, &cfg); err != nil {
		return nil, fmt.Errorf("schema: %s %s: %w", op, uri, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("schema: %s %s: %w", op, uri, err)
	}
	return &cfg, nil
}

// ClassNamed looks up a class by name, case-insensitively.
func (c *Config) ClassNamed(name string) (*Class, bool) {
	for i := range c.Classes {
		if strings.EqualFold(c.Classes[i].Name, name) {
			return &c.Classes[i], true
		}
	}
	return nil, false
}

// Validate checks structural invariants: classes are named, and attribute
// names are unique within each containing scope (top level, one group, one
// list template).
func (c *Config) Validate() error {
	if len(c.Classes) == 0 {
		return fmt.Errorf("configuration has no classes")
	}
	for _, class := range c.Classes {
		if class.Name == "" {
			return fmt.Errorf("configuration has a class with no name")
		}
		if err := checkUniqueNames(class.Name, class.Attributes); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAssessment fails fast when assessment-stage settings that change
// correctness are missing.
func (c *Config) ValidateAssessment() error {
	if c.Assessment.ModelID == "" {
		return fmt.Errorf("assessment configuration is missing model_id")
	}
	if c.Assessment.SystemPrompt == "" {
		return fmt.Errorf("assessment configuration is missing system_prompt")
	}
	if c.Assessment.TaskPrompt == "" {
		return fmt.Errorf("assessment configuration is missing task_prompt")
	}
	return nil
}

func checkUniqueNames(scope string, attrs []Attribute) error {
	seen := make(map[string]bool, len(attrs))
	for _, attr := range attrs {
		if attr.Name == "" {
			return fmt.Errorf("class %s: attribute with no name", scope)
		}
		if seen[attr.Name] {
			return fmt.Errorf("class %s: duplicate attribute name %q", scope, attr.Name)
		}
		seen[attr.Name] = true

		if len(attr.GroupAttributes) > 0 {
			if err := checkUniqueNames(scope+"."+attr.Name, attr.GroupAttributes); err != nil {
				return err
			}
		}
		if items := attr.ItemAttributes(); len(items) > 0 {
			if err := checkUniqueNames(scope+"."+attr.Name, items); err != nil {
				return err
			}
		}
	}
	return nil
}
