package evaluation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"idp/internal/config"
	"idp/internal/llm"
	"idp/internal/logger"
	"idp/internal/s3store"
	"idp/internal/schema"
	"idp/pkg/models"
)

// GroundTruth maps section ID to that section's expected attribute values.
type GroundTruth map[string]map[string]any

// LoadGroundTruth reads a ground-truth document from the store: a JSON
// object keyed by section ID.
func LoadGroundTruth(ctx context.Context, store s3store.Store, uri string) (GroundTruth, error) {
	var gt GroundTruth
	if err := store.ReadJSON(ctx, uri, &gt); err != nil {
		return nil, fmt.Errorf("evaluation: load ground truth %s: %w", uri, err)
	}
	return gt, nil
}

// Evaluator drives the evaluation of a whole document: per-section attribute
// comparison, metric aggregation, and deterministic ordering of the results
// regardless of completion order.
type Evaluator struct {
	store      s3store.Store
	comparator *Comparator
	cfg        *config.Config
	schema     *schema.Config
	log        zerolog.Logger
}

// NewEvaluator builds an evaluator over an injected store and comparator.
func NewEvaluator(store s3store.Store, comparator *Comparator, cfg *config.Config, schemaCfg *schema.Config) *Evaluator {
	return &Evaluator{
		store:      store,
		comparator: comparator,
		cfg:        cfg,
		schema:     schemaCfg,
		log:        logger.WithComponent("evaluation"),
	}
}

// EvaluateDocument evaluates every section of the document against the
// ground truth on a bounded worker pool. A failed section is logged and
// recorded; it never aborts its siblings, and the returned result covers the
// sections that survived. Sections are ordered by ID and attributes by name,
// so the output is identical regardless of completion order.
func (e *Evaluator) EvaluateDocument(ctx context.Context, doc *models.Document, groundTruth GroundTruth) (*models.DocumentEvaluationResult, error) {
	const op = "EvaluateDocument"

	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("evaluation: %s: document %s has no sections", op, doc.ID)
	}

	doc.Status = models.StatusEvaluating
	start := time.Now()

	workers := len(doc.Sections)
	if workers > e.cfg.MaxSectionWorkers {
		workers = e.cfg.MaxSectionWorkers
	}

	e.log.Info().
		Str("document_id", doc.ID).
		Int("sections", len(doc.Sections)).
		Int("workers", workers).
		Msg("Starting document evaluation")

	type sectionOutcome struct {
		result models.SectionEvaluationResult
		counts ConfusionCounts
		usage  llm.Usage
		errs   []string
		failed error
	}

	outcomes := make([]sectionOutcome, len(doc.Sections))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i := range doc.Sections {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, section *models.Section) {
			defer wg.Done()
			defer func() { <-sem }()

			out := &outcomes[i]
			out.result, out.counts, out.usage, out.errs, out.failed =
				e.evaluateSection(ctx, section, groundTruth[section.ID])
		}(i, &doc.Sections[i])
	}
	wg.Wait()

	// Merge on the collecting goroutine only, so no aggregate state is
	// shared across workers.
	result := &models.DocumentEvaluationResult{DocumentID: doc.ID}
	var counts ConfusionCounts
	var usage llm.Usage
	fails := 0

	for i := range outcomes {
		out := &outcomes[i]
		if out.failed != nil {
			fails++
			doc.AddError(out.failed.Error())
			result.Errors = append(result.Errors, out.failed.Error())
			e.log.Error().
				Err(out.failed).
				Str("document_id", doc.ID).
				Str("section_id", doc.Sections[i].ID).
				Msg("Section evaluation failed")
			continue
		}
		for _, msg := range out.errs {
			doc.AddError(msg)
			result.Errors = append(result.Errors, msg)
		}
		result.Sections = append(result.Sections, out.result)
		counts.Add(out.counts)
		usage.Add(out.usage)
	}

	sort.Slice(result.Sections, func(i, j int) bool {
		return result.Sections[i].SectionID < result.Sections[j].SectionID
	})

	result.Metrics = counts.Derive()
	result.ExecutionTime = time.Since(start).Seconds()
	result.Usage = models.TokenUsage{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
	}

	switch {
	case fails == 0:
		doc.Status = models.StatusCompleted
	case fails < len(doc.Sections):
		doc.Status = models.StatusPartial
	default:
		doc.Status = models.StatusFailed
	}
	doc.UpdatedAt = time.Now()

	e.log.Info().
		Str("document_id", doc.ID).
		Str("status", doc.Status).
		Int("failed_sections", fails).
		Float64("accuracy", result.Metrics.Accuracy).
		Dur("elapsed", time.Since(start)).
		Msg("Document evaluation finished")

	if fails == len(doc.Sections) {
		return result, fmt.Errorf("evaluation: %s: document %s: all %d section(s) failed", op, doc.ID, len(doc.Sections))
	}
	return result, nil
}

// attributeTask is one pending attribute comparison within a section.
type attributeTask struct {
	name       string
	expected   any
	actual     any
	spec       CompareSpec
	configured bool
	attr       schema.Attribute
}

// evaluateSection compares every attribute of one section. Cheap comparisons
// run inline on the calling goroutine; expensive ones go to a bounded worker
// pool. A single attribute's failure is recorded and excluded from the
// counts without aborting its siblings.
func (e *Evaluator) evaluateSection(ctx context.Context, section *models.Section, expected map[string]any) (models.SectionEvaluationResult, ConfusionCounts, llm.Usage, []string, error) {
	const op = "evaluateSection"

	result := models.SectionEvaluationResult{
		SectionID:     section.ID,
		DocumentClass: section.Class,
	}

	fail := func(err error) (models.SectionEvaluationResult, ConfusionCounts, llm.Usage, []string, error) {
		return result, ConfusionCounts{}, llm.Usage{}, nil, fmt.Errorf("evaluation: %s: section %s: %w", op, section.ID, err)
	}

	if section.ExtractionResultURI == "" {
		return fail(fmt.Errorf("section has no extraction result"))
	}

	var record map[string]any
	if err := e.store.ReadJSON(ctx, section.ExtractionResultURI, &record); err != nil {
		return fail(fmt.Errorf("read extraction record: %w", err))
	}
	actual, _ := record["inference_result"].(map[string]any)

	var attrs []schema.Attribute
	if class, ok := e.schema.ClassNamed(section.Class); ok {
		attrs = class.Attributes
	} else {
		e.log.Warn().
			Str("section_id", section.ID).
			Str("class", section.Class).
			Msg("Section class is not in the configuration, evaluating all attributes with the judge model")
	}

	tasks := e.buildTasks(section, attrs, expected, actual)

	var cheap, expensive []*attributeTask
	for i := range tasks {
		if isExpensive(tasks[i].spec) {
			expensive = append(expensive, &tasks[i])
		} else {
			cheap = append(cheap, &tasks[i])
		}
	}

	var counts ConfusionCounts
	var usage llm.Usage
	var errs []string

	record1 := func(task *attributeTask, cmp Comparison) {
		result.Attributes = append(result.Attributes, buildAttributeResult(task, cmp))
		counts.Add(cmp.Counts)
		usage.Add(cmp.Usage)
	}

	for _, task := range cheap {
		cmp, err := e.comparator.Compare(ctx, task.expected, task.actual, task.spec)
		if err != nil {
			errs = append(errs, fmt.Sprintf("evaluation: section %s: attribute %s: %v", section.ID, task.name, err))
			continue
		}
		record1(task, cmp)
	}

	if len(expensive) > 0 {
		workers := len(expensive)
		if workers > e.cfg.MaxAttributeWorkers {
			workers = e.cfg.MaxAttributeWorkers
		}

		type taskOutcome struct {
			cmp Comparison
			err error
		}
		outcomes := make([]taskOutcome, len(expensive))

		var wg sync.WaitGroup
		sem := make(chan struct{}, workers)
		for i, task := range expensive {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, task *attributeTask) {
				defer wg.Done()
				defer func() { <-sem }()
				outcomes[i].cmp, outcomes[i].err = e.comparator.Compare(ctx, task.expected, task.actual, task.spec)
			}(i, task)
		}
		wg.Wait()

		for i, task := range expensive {
			if outcomes[i].err != nil {
				errs = append(errs, fmt.Sprintf("evaluation: section %s: attribute %s: %v", section.ID, task.name, outcomes[i].err))
				continue
			}
			record1(task, outcomes[i].cmp)
		}
	}

	sort.Slice(result.Attributes, func(i, j int) bool {
		return result.Attributes[i].Name < result.Attributes[j].Name
	})
	result.Metrics = counts.Derive()
	return result, counts, usage, errs, nil
}

// buildTasks resolves the attribute union for a section: every configured
// attribute, plus any attribute present in the expected or actual data but
// not configured, evaluated with the judge model and flagged in its reason.
func (e *Evaluator) buildTasks(section *models.Section, attrs []schema.Attribute, expected, actual map[string]any) []attributeTask {
	defaultThreshold := e.cfg.DefaultEvaluationThreshold
	if defaultThreshold == 0 {
		defaultThreshold = schema.DefaultEvaluationThreshold
	}

	var tasks []attributeTask
	seen := make(map[string]bool, len(attrs))

	for _, attr := range attrs {
		seen[attr.Name] = true
		tasks = append(tasks, attributeTask{
			name:       attr.Name,
			expected:   expected[attr.Name],
			actual:     actual[attr.Name],
			configured: true,
			attr:       attr,
			spec: CompareSpec{
				Method:               attr.Method(),
				Threshold:            attr.EvalThreshold(),
				ComparatorType:       attr.ComparatorType,
				ItemAttributes:       attr.ItemAttributes(),
				CaseSensitive:        e.cfg.ExactMatchCaseSensitive,
				DocumentClass:        section.Class,
				AttributeName:        attr.Name,
				AttributeDescription: attr.Description,
			},
		})
	}

	extra := make(map[string]bool)
	for name := range expected {
		if !seen[name] {
			extra[name] = true
		}
	}
	for name := range actual {
		if !seen[name] {
			extra[name] = true
		}
	}
	extraNames := make([]string, 0, len(extra))
	for name := range extra {
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)

	for _, name := range extraNames {
		tasks = append(tasks, attributeTask{
			name:     name,
			expected: expected[name],
			actual:   actual[name],
			spec: CompareSpec{
				Method:        schema.MethodLLM,
				Threshold:     defaultThreshold,
				CaseSensitive: e.cfg.ExactMatchCaseSensitive,
				DocumentClass: section.Class,
				AttributeName: name,
			},
		})
	}
	return tasks
}

// isExpensive classifies a comparison as needing the worker pool: anything
// that performs a network round trip per comparison.
func isExpensive(spec CompareSpec) bool {
	switch spec.Method {
	case schema.MethodLLM, schema.MethodSemantic:
		return true
	case schema.MethodHungarian:
		return spec.ComparatorType == schema.MethodLLM || spec.ComparatorType == schema.MethodSemantic
	default:
		return false
	}
}

// buildAttributeResult shapes one comparison outcome for the report,
// including the conditional threshold and comparator-type fields.
func buildAttributeResult(task *attributeTask, cmp Comparison) models.EvaluationAttributeResult {
	r := models.EvaluationAttributeResult{
		Name:             task.name,
		Expected:         task.expected,
		Actual:           task.actual,
		Matched:          cmp.Matched,
		Score:            cmp.Score,
		Reason:           cmp.Reason,
		EvaluationMethod: task.spec.Method,
	}

	if !task.configured {
		r.Reason = appendNote(r.Reason, "Attribute is not in the configuration")
	}

	switch task.spec.Method {
	case schema.MethodFuzzy, schema.MethodSemantic:
		threshold := task.spec.Threshold
		r.EvaluationThreshold = &threshold
	case schema.MethodHungarian:
		r.ComparatorType = task.spec.ComparatorType
		if r.ComparatorType == "" {
			r.ComparatorType = schema.MethodExact
		}
		if r.ComparatorType == schema.MethodFuzzy {
			threshold := task.spec.Threshold
			r.EvaluationThreshold = &threshold
		}
	}
	return r
}

func appendNote(reason, note string) string {
	if reason == "" {
		return note
	}
	return reason + "; " + note
}
