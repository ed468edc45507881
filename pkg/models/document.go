package models

import "time"

// Document processing statuses. A document moves QUEUED -> ASSESSING or
// EVALUATING -> COMPLETED, PARTIAL or FAILED depending on how many of its
// sections survive processing.
const (
	StatusQueued     = "QUEUED"
	StatusAssessing  = "ASSESSING"
	StatusEvaluating = "EVALUATING"
	StatusCompleted  = "COMPLETED"
	StatusPartial    = "PARTIAL"
	StatusFailed     = "FAILED"
)

// Document is the record tracked for one input document across the pipeline.
type Document struct {
	// Core identifiers
	ID       string `json:"id"`        // Unique document identifier
	InputKey string `json:"input_key"` // Object key of the source document

	// Structure
	Pages    map[string]Page `json:"pages,omitempty"`    // Page ID -> page record
	Sections []Section       `json:"sections,omitempty"` // Ordered by section ID

	// Status
	Status string   `json:"status"`
	Errors []string `json:"errors,omitempty"` // Accumulated non-fatal error strings

	// Timestamps
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// AddError appends a non-fatal error string to the document record.
func (d *Document) AddError(msg string) {
	d.Errors = append(d.Errors, msg)
}

// Page is one page of a document with pointers to its stored artifacts.
type Page struct {
	ID string `json:"id"`

	// Blob URIs (s3://bucket/key) produced by the OCR stage.
	TextURI          string `json:"text_uri,omitempty"`           // Plain page text
	ImageURI         string `json:"image_uri,omitempty"`          // Rendered page image
	OCRConfidenceURI string `json:"ocr_confidence_uri,omitempty"` // Per-word OCR confidence JSON
}

// Section is a contiguous run of pages sharing one classification.
type Section struct {
	ID    string `json:"id"`
	Class string `json:"class"` // Document class assigned by classification

	// PageIDs lists the section's pages in reading order.
	PageIDs []string `json:"page_ids,omitempty"`

	// ExtractionResultURI points at the extraction-result JSON for this
	// section. Assessment reads and rewrites this same object, appending
	// explainability_info and metadata flags.
	ExtractionResultURI string `json:"extraction_result_uri,omitempty"`

	// ConfidenceAlerts holds below-threshold alerts attached by assessment
	// for downstream human-review triggering.
	ConfidenceAlerts []ConfidenceAlert `json:"confidence_alerts,omitempty"`
}

// ConfidenceAlert flags one attribute whose assessed confidence fell below
// its schema-resolved threshold.
type ConfidenceAlert struct {
	AttributeName       string  `json:"attribute_name"`
	Confidence          float64 `json:"confidence"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}
