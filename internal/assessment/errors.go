package assessment

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownClass indicates a section's class has no entry in the
	// configuration document.
	ErrUnknownClass = errors.New("document class not found in configuration")

	// ErrNoExtractionResult indicates a section carries no extraction-result
	// URI to assess.
	ErrNoExtractionResult = errors.New("section has no extraction result")

	// ErrNoPageContent indicates none of a section's pages yielded text or
	// image content to put in front of the model.
	ErrNoPageContent = errors.New("section has no page content")
)

// SectionError wraps a failure scoped to one section's assessment.
type SectionError struct {
	Op        string
	SectionID string
	Err       error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("assessment: %s: section %s: %v", e.Op, e.SectionID, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}

func (e *SectionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
