package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idp/internal/config"
	"idp/internal/llm"
	"idp/internal/schema"
	"idp/pkg/models"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) put(uri string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[uri] = data
}

func (m *memStore) ReadBytes(_ context.Context, uri string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[uri]
	if !ok {
		return nil, fmt.Errorf("no object at %s", uri)
	}
	return data, nil
}

func (m *memStore) ReadText(ctx context.Context, uri string) (string, error) {
	data, err := m.ReadBytes(ctx, uri)
	return string(data), err
}

func (m *memStore) ReadJSON(ctx context.Context, uri string, out any) error {
	data, err := m.ReadBytes(ctx, uri)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (m *memStore) WriteBytes(_ context.Context, uri string, data []byte, _ string) error {
	m.put(uri, data)
	return nil
}

func (m *memStore) WriteJSON(ctx context.Context, uri string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.WriteBytes(ctx, uri, data, "application/json")
}

// scriptedInvoker returns a canned response and records the last request.
type scriptedInvoker struct {
	mu       sync.Mutex
	response string
	err      error
	requests []llm.Request
}

func (s *scriptedInvoker) Converse(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{
		Text:  s.response,
		Usage: llm.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}, nil
}

func testSchemaConfig() *schema.Config {
	return &schema.Config{
		Classes: []schema.Class{
			{
				Name: "Invoice",
				Attributes: []schema.Attribute{
					{Name: "invoice_number", Description: "Invoice ID", ConfidenceThreshold: 0.95},
					{Name: "total_amount", Description: "Grand total", ConfidenceThreshold: 0.9},
				},
			},
		},
		Assessment: schema.PromptConfig{
			ModelID:      "test-model",
			SystemPrompt: "You rate extraction confidence.",
			TaskPrompt: "Class: {DOCUMENT_CLASS}\n" +
				"Attributes:\n{ATTRIBUTE_NAMES_AND_DESCRIPTIONS}\n" +
				"Extraction:\n{EXTRACTION_RESULTS}\n" +
				"Text:\n{DOCUMENT_TEXT}",
			MaxTokens: 1024,
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		AssessmentModelID:          "fallback-model",
		MaxTokens:                  4096,
		DefaultConfidenceThreshold: 0.8,
		MaxSectionWorkers:          4,
	}
}

func testDocument(store *memStore, sectionClasses ...string) *models.Document {
	doc := &models.Document{
		ID:       "doc-1",
		InputKey: "in/doc-1.pdf",
		Pages:    make(map[string]models.Page),
	}
	for i, class := range sectionClasses {
		pageID := fmt.Sprintf("p%d", i+1)
		textURI := fmt.Sprintf("s3://bucket/pages/%s.txt", pageID)
		resultURI := fmt.Sprintf("s3://bucket/sections/s%d.json", i+1)

		store.put(textURI, []byte("Invoice #42 total 19.99"))
		store.put(resultURI, []byte(`{"inference_result": {"invoice_number": "42", "total_amount": "19.99"}}`))

		doc.Pages[pageID] = models.Page{ID: pageID, TextURI: textURI}
		doc.Sections = append(doc.Sections, models.Section{
			ID:                  fmt.Sprintf("s%d", i+1),
			Class:               class,
			PageIDs:             []string{pageID},
			ExtractionResultURI: resultURI,
		})
	}
	return doc
}

func TestAssessSection(t *testing.T) {
	store := newMemStore()
	invoker := &scriptedInvoker{
		response: `{"invoice_number": {"confidence": 0.98, "confidence_reason": "clear"}, "total_amount": {"confidence": 0.85, "confidence_reason": "blurry"}}`,
	}
	doc := testDocument(store, "Invoice")

	svc, err := NewService(store, invoker, testConfig(), testSchemaConfig())
	require.NoError(t, err)

	usage, err := svc.AssessSection(context.Background(), doc, &doc.Sections[0])
	require.NoError(t, err)
	assert.Equal(t, 150, usage.TotalTokens)

	// One alert: total_amount 0.85 < 0.9; invoice_number 0.98 >= 0.95.
	require.Len(t, doc.Sections[0].ConfidenceAlerts, 1)
	assert.Equal(t, "total_amount", doc.Sections[0].ConfidenceAlerts[0].AttributeName)

	var record map[string]any
	require.NoError(t, store.ReadJSON(context.Background(), doc.Sections[0].ExtractionResultURI, &record))

	// The original extraction payload survives the rewrite.
	inference := record["inference_result"].(map[string]any)
	assert.Equal(t, "42", inference["invoice_number"])

	info := record["explainability_info"].([]any)
	require.Len(t, info, 1)
	annotated := info[0].(map[string]any)
	total := annotated["total_amount"].(map[string]any)
	assert.InDelta(t, 0.9, total["confidence_threshold"].(float64), 1e-9)

	metadata := record["metadata"].(map[string]any)
	assert.Equal(t, true, metadata["assessment_parsing_succeeded"])
	assert.Contains(t, metadata, "assessment_time_seconds")

	// The prompt carried the substituted class name and extraction values.
	require.Len(t, invoker.requests, 1)
	req := invoker.requests[0]
	assert.Equal(t, "test-model", req.ModelID)
	require.Len(t, req.Content, 1)
	assert.Contains(t, req.Content[0].Text, "Class: Invoice")
	assert.Contains(t, req.Content[0].Text, "invoice_number\t[ Invoice ID ]")
	assert.NotContains(t, req.Content[0].Text, "{DOCUMENT_CLASS}")
}

func TestAssessSectionParseFailure(t *testing.T) {
	store := newMemStore()
	invoker := &scriptedInvoker{response: "the model rambled and returned no JSON"}
	doc := testDocument(store, "Invoice")

	svc, err := NewService(store, invoker, testConfig(), testSchemaConfig())
	require.NoError(t, err)

	_, err = svc.AssessSection(context.Background(), doc, &doc.Sections[0])
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, store.ReadJSON(context.Background(), doc.Sections[0].ExtractionResultURI, &record))

	metadata := record["metadata"].(map[string]any)
	assert.Equal(t, false, metadata["assessment_parsing_succeeded"])

	// Every configured attribute gets the synthetic default leaf.
	annotated := record["explainability_info"].([]any)[0].(map[string]any)
	for _, name := range []string{"invoice_number", "total_amount"} {
		leaf := annotated[name].(map[string]any)
		assert.InDelta(t, DefaultConfidence, leaf["confidence"].(float64), 1e-9)
	}

	// 0.5 falls below both thresholds, so both attributes alert.
	assert.Len(t, doc.Sections[0].ConfidenceAlerts, 2)
}

func TestAssessSectionUnknownClass(t *testing.T) {
	store := newMemStore()
	doc := testDocument(store, "Receipt")

	svc, err := NewService(store, &scriptedInvoker{response: "{}"}, testConfig(), testSchemaConfig())
	require.NoError(t, err)

	_, err = svc.AssessSection(context.Background(), doc, &doc.Sections[0])
	require.ErrorIs(t, err, ErrUnknownClass)
}

func TestAssessDocumentPartialFailure(t *testing.T) {
	store := newMemStore()
	invoker := &scriptedInvoker{
		response: `{"invoice_number": {"confidence": 0.98}, "total_amount": {"confidence": 0.95}}`,
	}
	doc := testDocument(store, "Invoice", "Unknown", "Invoice")

	svc, err := NewService(store, invoker, testConfig(), testSchemaConfig())
	require.NoError(t, err)

	err = svc.AssessDocument(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPartial, doc.Status)
	require.Len(t, doc.Errors, 1)
	assert.Contains(t, doc.Errors[0], "s2")
}

func TestAssessDocumentAllSectionsFail(t *testing.T) {
	store := newMemStore()
	doc := testDocument(store, "Unknown")

	svc, err := NewService(store, &scriptedInvoker{response: "{}"}, testConfig(), testSchemaConfig())
	require.NoError(t, err)

	err = svc.AssessDocument(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
}

func TestNewServiceRejectsIncompleteConfig(t *testing.T) {
	cfg := testSchemaConfig()
	cfg.Assessment.TaskPrompt = ""

	_, err := NewService(newMemStore(), &scriptedInvoker{}, testConfig(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task_prompt")
}

func TestAssessSectionMissingRequiredPlaceholder(t *testing.T) {
	store := newMemStore()
	doc := testDocument(store, "Invoice")

	cfg := testSchemaConfig()
	cfg.Assessment.TaskPrompt = "Just the text: {DOCUMENT_TEXT}"

	svc, err := NewService(store, &scriptedInvoker{response: "{}"}, testConfig(), cfg)
	require.NoError(t, err)

	_, err = svc.AssessSection(context.Background(), doc, &doc.Sections[0])
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "DOCUMENT_CLASS"))
}
