package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"idp/internal/config"
	"idp/internal/llm"
	"idp/internal/llmjson"
	"idp/internal/logger"
	"idp/internal/prompt"
	"idp/internal/s3store"
	"idp/internal/schema"
	"idp/pkg/models"
)

// Service runs the per-section assessment stage: it asks the model to rate
// its own extraction confidence per attribute, annotates the response with
// schema thresholds, and rewrites the section's extraction record with the
// explainability payload.
type Service struct {
	store   s3store.Store
	invoker llm.Invoker
	cfg     *config.Config
	schema  *schema.Config
	log     zerolog.Logger
}

// NewService builds an assessment service, failing fast when the
// configuration document lacks the settings the stage depends on.
func NewService(store s3store.Store, invoker llm.Invoker, cfg *config.Config, schemaCfg *schema.Config) (*Service, error) {
	const op = "NewService"

	if err := schemaCfg.ValidateAssessment(); err != nil {
		return nil, fmt.Errorf("assessment: %s: %w", op, err)
	}
	return &Service{
		store:   store,
		invoker: invoker,
		cfg:     cfg,
		schema:  schemaCfg,
		log:     logger.WithComponent("assessment"),
	}, nil
}

// AssessDocument assesses every section of the document on a bounded worker
// pool. A failed section is logged and recorded on the document; it never
// aborts its siblings. The document status reflects how many sections
// survived: COMPLETED, PARTIAL, or FAILED.
func (s *Service) AssessDocument(ctx context.Context, doc *models.Document) error {
	const op = "AssessDocument"

	if len(doc.Sections) == 0 {
		return fmt.Errorf("assessment: %s: document %s has no sections", op, doc.ID)
	}

	doc.Status = models.StatusAssessing
	start := time.Now()

	workers := len(doc.Sections)
	if workers > s.cfg.MaxSectionWorkers {
		workers = s.cfg.MaxSectionWorkers
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Int("sections", len(doc.Sections)).
		Int("workers", workers).
		Msg("Starting document assessment")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		sem   = make(chan struct{}, workers)
		usage llm.Usage
		fails int
	)

	for i := range doc.Sections {
		wg.Add(1)
		sem <- struct{}{}
		go func(section *models.Section) {
			defer wg.Done()
			defer func() { <-sem }()

			sectionUsage, err := s.AssessSection(ctx, doc, section)

			mu.Lock()
			defer mu.Unlock()
			usage.Add(sectionUsage)
			if err != nil {
				fails++
				doc.AddError(err.Error())
				s.log.Error().
					Err(err).
					Str("document_id", doc.ID).
					Str("section_id", section.ID).
					Msg("Section assessment failed")
			}
		}(&doc.Sections[i])
	}
	wg.Wait()

	switch {
	case fails == 0:
		doc.Status = models.StatusCompleted
	case fails < len(doc.Sections):
		doc.Status = models.StatusPartial
	default:
		doc.Status = models.StatusFailed
	}
	doc.UpdatedAt = time.Now()

	s.log.Info().
		Str("document_id", doc.ID).
		Str("status", doc.Status).
		Int("failed_sections", fails).
		Int("input_tokens", usage.InputTokens).
		Int("output_tokens", usage.OutputTokens).
		Dur("elapsed", time.Since(start)).
		Msg("Document assessment finished")

	if doc.Status == models.StatusFailed {
		return fmt.Errorf("assessment: %s: document %s: all %d section(s) failed", op, doc.ID, len(doc.Sections))
	}
	return nil
}

// AssessSection assesses one section end to end and rewrites its extraction
// record in place. The returned usage covers the section's single model
// invocation and is reported even when a later step fails.
func (s *Service) AssessSection(ctx context.Context, doc *models.Document, section *models.Section) (llm.Usage, error) {
	const op = "AssessSection"
	start := time.Now()

	fail := func(err error) (llm.Usage, error) {
		return llm.Usage{}, &SectionError{Op: op, SectionID: section.ID, Err: err}
	}

	class, ok := s.schema.ClassNamed(section.Class)
	if !ok {
		return fail(fmt.Errorf("%w: %q", ErrUnknownClass, section.Class))
	}
	if section.ExtractionResultURI == "" {
		return fail(ErrNoExtractionResult)
	}

	var record map[string]any
	if err := s.store.ReadJSON(ctx, section.ExtractionResultURI, &record); err != nil {
		return fail(fmt.Errorf("read extraction record: %w", err))
	}

	pages, err := s.loadPages(ctx, doc, section)
	if err != nil {
		return fail(err)
	}
	if pages.text == "" && len(pages.images) == 0 {
		return fail(ErrNoPageContent)
	}

	inference, _ := record["inference_result"].(map[string]any)
	extractionJSON, err := json.MarshalIndent(inference, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("encode extraction results: %w", err))
	}

	subs := map[string]string{
		"DOCUMENT_TEXT":                    pages.text,
		"DOCUMENT_CLASS":                   class.Name,
		"ATTRIBUTE_NAMES_AND_DESCRIPTIONS": schema.FormatDescriptions(class.Attributes),
		"EXTRACTION_RESULTS":               string(extractionJSON),
		"OCR_TEXT_CONFIDENCE":              pages.ocrConfidence,
	}

	examples, err := s.loadExamples(ctx, class)
	if err != nil {
		return fail(err)
	}

	content, err := prompt.BuildContent(s.schema.Assessment.TaskPrompt, subs, pages.images, examples, prompt.Options{
		StrictImagePlacement: true,
		RequiredPlaceholders: []string{"DOCUMENT_CLASS", "ATTRIBUTE_NAMES_AND_DESCRIPTIONS", "EXTRACTION_RESULTS"},
	})
	if err != nil {
		return fail(fmt.Errorf("assemble prompt: %w", err))
	}

	resp, err := s.invoker.Converse(ctx, s.buildRequest(content))
	if err != nil {
		return fail(fmt.Errorf("invoke model: %w", err))
	}

	outcome := llmjson.ParseObject(resp.Text)
	data := outcome.Value
	if !outcome.Succeeded {
		s.log.Warn().
			Str("section_id", section.ID).
			Int("response_chars", len(resp.Text)).
			Msg("Assessment response did not parse as JSON, substituting default structure")
		data = DefaultStructure(class.Attributes, "Assessment response could not be parsed as JSON")
	}

	defaultThreshold := schema.SafeFloat(s.schema.DefaultConfidenceThreshold, s.cfg.DefaultConfidenceThreshold)
	annotated, alerts := Annotate(data, class.Attributes, defaultThreshold)

	record["explainability_info"] = []any{annotated}
	metadata, _ := record["metadata"].(map[string]any)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["assessment_parsing_succeeded"] = outcome.Succeeded
	metadata["assessment_time_seconds"] = time.Since(start).Seconds()
	record["metadata"] = metadata

	if err := s.store.WriteJSON(ctx, section.ExtractionResultURI, record); err != nil {
		return resp.Usage, &SectionError{Op: op, SectionID: section.ID, Err: fmt.Errorf("rewrite extraction record: %w", err)}
	}

	section.ConfidenceAlerts = alerts

	s.log.Info().
		Str("section_id", section.ID).
		Str("class", class.Name).
		Bool("parsing_succeeded", outcome.Succeeded).
		Int("alerts", len(alerts)).
		Dur("elapsed", time.Since(start)).
		Msg("Section assessed")
	return resp.Usage, nil
}

func (s *Service) buildRequest(content []llm.ContentBlock) llm.Request {
	pc := s.schema.Assessment
	req := llm.Request{
		ModelID:     pc.ModelID,
		System:      pc.SystemPrompt,
		Content:     content,
		Temperature: pc.Temperature,
		TopP:        pc.TopP,
		TopK:        pc.TopK,
		MaxTokens:   pc.MaxTokens,
	}
	if req.ModelID == "" {
		req.ModelID = s.cfg.AssessmentModelID
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = s.cfg.MaxTokens
	}
	return req
}

// pageContent is a section's gathered page artifacts.
type pageContent struct {
	text          string
	images        []llm.ImageAttachment
	ocrConfidence string
}

// loadPages gathers text, rendered images, and OCR confidence data for the
// section's pages in reading order. Missing per-page artifacts are skipped;
// read failures are not.
func (s *Service) loadPages(ctx context.Context, doc *models.Document, section *models.Section) (pageContent, error) {
	var out pageContent
	var texts []string
	var confidences []any

	for _, pageID := range section.PageIDs {
		page, ok := doc.Pages[pageID]
		if !ok {
			return out, fmt.Errorf("page %s is not in the document record", pageID)
		}

		if page.TextURI != "" {
			text, err := s.store.ReadText(ctx, page.TextURI)
			if err != nil {
				return out, fmt.Errorf("read page %s text: %w", pageID, err)
			}
			texts = append(texts, text)
		}
		if page.ImageURI != "" {
			data, err := s.store.ReadBytes(ctx, page.ImageURI)
			if err != nil {
				return out, fmt.Errorf("read page %s image: %w", pageID, err)
			}
			out.images = append(out.images, llm.ImageAttachment{
				Format: imageFormat(page.ImageURI),
				Data:   data,
			})
		}
		if page.OCRConfidenceURI != "" {
			var conf any
			if err := s.store.ReadJSON(ctx, page.OCRConfidenceURI, &conf); err != nil {
				return out, fmt.Errorf("read page %s OCR confidence: %w", pageID, err)
			}
			confidences = append(confidences, conf)
		}
	}

	out.text = strings.Join(texts, "\n")
	if len(confidences) > 0 {
		encoded, err := json.Marshal(confidences)
		if err != nil {
			return out, fmt.Errorf("encode OCR confidence: %w", err)
		}
		out.ocrConfidence = string(encoded)
	}
	return out, nil
}

// loadExamples resolves a class's few-shot examples, loading example images
// from the store.
func (s *Service) loadExamples(ctx context.Context, class *schema.Class) ([]prompt.Example, error) {
	if len(class.Examples) == 0 {
		return nil, nil
	}

	examples := make([]prompt.Example, 0, len(class.Examples))
	for _, ex := range class.Examples {
		example := prompt.Example{Name: ex.Name, Text: ex.Prompt}
		for _, uri := range ex.ImageURIs {
			data, err := s.store.ReadBytes(ctx, uri)
			if err != nil {
				return nil, fmt.Errorf("load example %q image: %w", ex.Name, err)
			}
			example.Images = append(example.Images, llm.ImageAttachment{
				Format: imageFormat(uri),
				Data:   data,
			})
		}
		examples = append(examples, example)
	}
	return examples, nil
}

// imageFormat infers the attachment format from a URI's extension,
// defaulting to png.
func imageFormat(uri string) string {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "jpeg"
	case strings.HasSuffix(lower, ".gif"):
		return "gif"
	case strings.HasSuffix(lower, ".webp"):
		return "webp"
	default:
		return "png"
	}
}
