// Package prompt assembles multimodal chat content from prompt templates.
//
// Templates carry named placeholders such as {DOCUMENT_TEXT} and
// {ATTRIBUTE_NAMES_AND_DESCRIPTIONS}, plus at most one {DOCUMENT_IMAGE}
// marking where page images are inserted and at most one
// {FEW_SHOT_EXAMPLES} marking where worked examples are spliced in. The
// assembler produces the ordered text/image content blocks the LLM
// transport expects.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"idp/internal/llm"
	"idp/internal/logger"
)

const (
	// ImagePlaceholder marks where document images are inserted.
	ImagePlaceholder = "{DOCUMENT_IMAGE}"

	// FewShotPlaceholder marks where few-shot examples are spliced in.
	FewShotPlaceholder = "{FEW_SHOT_EXAMPLES}"

	// MaxImages is the hard limit the downstream multimodal API places on
	// image attachments per request.
	MaxImages = 20
)

// placeholderRe matches {NAME} tokens. Lowercase braces (embedded JSON
// samples and the like) are deliberately left alone.
var placeholderRe = regexp.MustCompile(`\{[A-Z][A-Z0-9_]*\}`)

// Example is one few-shot example ready for splicing: its prompt text plus
// any already-loaded example images.
type Example struct {
	Name   string
	Text   string
	Images []llm.ImageAttachment
}

// Options controls content assembly.
type Options struct {
	// StrictImagePlacement makes a missing or duplicated {DOCUMENT_IMAGE}
	// placeholder a hard error (assessment). When false the assembler
	// degrades to appending images at the end with a logged warning
	// (extraction).
	StrictImagePlacement bool

	// RequiredPlaceholders must each appear literally in the raw template.
	RequiredPlaceholders []string
}

// Format substitutes {NAME} placeholders in template from subs in a single
// pass, so literal braces elsewhere in the template (and placeholder-like
// text inside substituted values) are never disturbed. Unknown placeholders
// are left intact. Each name in required must appear literally in the raw
// template or Format fails naming every missing placeholder.
func Format(template string, subs map[string]string, required []string) (string, error) {
	var missing []string
	for _, name := range required {
		if !strings.Contains(template, "{"+name+"}") {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt template is missing required placeholder(s): %s",
			strings.Join(missing, ", "))
	}

	out := placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		if value, ok := subs[name]; ok {
			return value
		}
		return token
	})
	return out, nil
}

// BuildContent assembles the ordered content blocks for one chat request.
// Images beyond MaxImages are dropped with a logged warning naming the
// count. See Options for placement behavior.
func BuildContent(template string, subs map[string]string, images []llm.ImageAttachment, examples []Example, opts Options) ([]llm.ContentBlock, error) {
	log := logger.WithComponent("prompt")

	if _, err := Format(template, nil, opts.RequiredPlaceholders); err != nil {
		return nil, err
	}

	if len(images) > MaxImages {
		log.Warn().
			Int("supplied", len(images)).
			Int("dropped", len(images)-MaxImages).
			Int("limit", MaxImages).
			Msg("Too many document images for one request, truncating")
		images = images[:MaxImages]
	}

	occurrences := strings.Count(template, ImagePlaceholder)
	appendAtEnd := false
	if len(images) > 0 {
		switch {
		case occurrences == 1:
			// Normal placement.
		case occurrences == 0:
			if opts.StrictImagePlacement {
				return nil, fmt.Errorf("prompt template has no %s placeholder but %d image(s) were supplied",
					ImagePlaceholder, len(images))
			}
			log.Warn().
				Int("images", len(images)).
				Msg("Template has no image placeholder, appending images at the end")
			appendAtEnd = true
		default:
			if opts.StrictImagePlacement {
				return nil, fmt.Errorf("prompt template contains %s %d times, expected exactly one",
					ImagePlaceholder, occurrences)
			}
			log.Warn().
				Int("occurrences", occurrences).
				Msg("Template repeats the image placeholder, appending images at the end instead")
			template = strings.ReplaceAll(template, ImagePlaceholder, "")
			appendAtEnd = true
		}
	}

	placed := images
	if appendAtEnd {
		placed = nil
	}

	blocks, err := assemble(template, subs, placed, examples, log)
	if err != nil {
		return nil, err
	}
	if appendAtEnd {
		for _, img := range images {
			blocks = append(blocks, llm.ImageBlock(img.Format, img.Data))
		}
	}
	return blocks, nil
}

// assemble recursively splits on the few-shot placeholder, then on the
// image placeholder, substituting each text segment independently.
func assemble(template string, subs map[string]string, images []llm.ImageAttachment, examples []Example, log zerolog.Logger) ([]llm.ContentBlock, error) {
	if strings.Contains(template, FewShotPlaceholder) {
		parts := strings.SplitN(template, FewShotPlaceholder, 2)

		// The document images belong to whichever half carries the image
		// placeholder; they are never duplicated into the other half.
		var beforeImages, afterImages []llm.ImageAttachment
		if strings.Contains(parts[0], ImagePlaceholder) {
			beforeImages = images
		} else {
			afterImages = images
		}

		blocks, err := assemble(parts[0], subs, beforeImages, nil, log)
		if err != nil {
			return nil, err
		}
		for _, example := range examples {
			if strings.TrimSpace(example.Text) == "" {
				log.Info().
					Str("example", example.Name).
					Msg("Skipping few-shot example with empty prompt")
				continue
			}
			blocks = append(blocks, llm.TextBlock(example.Text))
			for _, img := range example.Images {
				blocks = append(blocks, llm.ImageBlock(img.Format, img.Data))
			}
		}
		after, err := assemble(parts[1], subs, afterImages, nil, log)
		if err != nil {
			return nil, err
		}
		return append(blocks, after...), nil
	}

	if len(images) > 0 && strings.Contains(template, ImagePlaceholder) {
		segments := strings.Split(template, ImagePlaceholder)
		if len(segments) != 2 {
			return nil, fmt.Errorf("image placeholder split produced %d segments, expected 2", len(segments))
		}
		blocks := make([]llm.ContentBlock, 0, len(images)+2)
		before, err := Format(segments[0], subs, nil)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(before) != "" {
			blocks = append(blocks, llm.TextBlock(before))
		}
		for _, img := range images {
			blocks = append(blocks, llm.ImageBlock(img.Format, img.Data))
		}
		after, err := Format(segments[1], subs, nil)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(after) != "" {
			blocks = append(blocks, llm.TextBlock(after))
		}
		return blocks, nil
	}

	text, err := Format(strings.ReplaceAll(template, ImagePlaceholder, ""), subs, nil)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []llm.ContentBlock{llm.TextBlock(text)}, nil
}
