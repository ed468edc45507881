package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idp/internal/llm"
)

func img(tag string) llm.ImageAttachment {
	return llm.ImageAttachment{Format: "png", Data: []byte(tag)}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		subs     map[string]string
		required []string
		want     string
		wantErr  string
	}{
		{
			name:     "simple substitution",
			template: "Class: {DOCUMENT_CLASS}\nText: {DOCUMENT_TEXT}",
			subs:     map[string]string{"DOCUMENT_CLASS": "Invoice", "DOCUMENT_TEXT": "hello"},
			want:     "Class: Invoice\nText: hello",
		},
		{
			name:     "literal braces in embedded json survive",
			template: `Respond like {"matched": true}. Class: {DOCUMENT_CLASS}`,
			subs:     map[string]string{"DOCUMENT_CLASS": "Invoice"},
			want:     `Respond like {"matched": true}. Class: Invoice`,
		},
		{
			name:     "unknown placeholders are left intact",
			template: "{DOCUMENT_CLASS} and {NOT_SUPPLIED}",
			subs:     map[string]string{"DOCUMENT_CLASS": "Invoice"},
			want:     "Invoice and {NOT_SUPPLIED}",
		},
		{
			name:     "placeholder-like text inside values is not resubstituted",
			template: "{DOCUMENT_TEXT}",
			subs:     map[string]string{"DOCUMENT_TEXT": "see {DOCUMENT_CLASS}", "DOCUMENT_CLASS": "X"},
			want:     "see {DOCUMENT_CLASS}",
		},
		{
			name:     "missing required placeholder fails with names",
			template: "only {DOCUMENT_TEXT}",
			required: []string{"DOCUMENT_TEXT", "DOCUMENT_CLASS", "EXTRACTION_RESULTS"},
			wantErr:  "DOCUMENT_CLASS, EXTRACTION_RESULTS",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.template, tt.subs, tt.required)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildContentImagePlacement(t *testing.T) {
	template := "Look at the document:\n{DOCUMENT_IMAGE}\nNow rate {DOCUMENT_CLASS}."
	subs := map[string]string{"DOCUMENT_CLASS": "Invoice"}

	blocks, err := BuildContent(template, subs, []llm.ImageAttachment{img("p1"), img("p2")}, nil, Options{StrictImagePlacement: true})
	require.NoError(t, err)
	require.Len(t, blocks, 4)
	assert.Equal(t, "Look at the document:", blocks[0].Text)
	assert.Equal(t, []byte("p1"), blocks[1].Image.Data)
	assert.Equal(t, []byte("p2"), blocks[2].Image.Data)
	assert.Equal(t, "Now rate Invoice.", blocks[3].Text)
}

func TestBuildContentNoImages(t *testing.T) {
	blocks, err := BuildContent("Rate {DOCUMENT_CLASS}. {DOCUMENT_IMAGE}", map[string]string{"DOCUMENT_CLASS": "Invoice"}, nil, nil, Options{})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Rate Invoice. ", blocks[0].Text)
}

func TestBuildContentStrictRejectsMissingPlaceholder(t *testing.T) {
	_, err := BuildContent("no placeholder here", nil, []llm.ImageAttachment{img("p1")}, nil, Options{StrictImagePlacement: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{DOCUMENT_IMAGE}")
}

func TestBuildContentStrictRejectsDuplicatePlaceholder(t *testing.T) {
	_, err := BuildContent("{DOCUMENT_IMAGE} and {DOCUMENT_IMAGE}", nil, []llm.ImageAttachment{img("p1")}, nil, Options{StrictImagePlacement: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly one")
}

func TestBuildContentLaxAppendsImagesAtEnd(t *testing.T) {
	blocks, err := BuildContent("no placeholder here", nil, []llm.ImageAttachment{img("p1"), img("p2")}, nil, Options{})
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, "no placeholder here", blocks[0].Text)
	assert.NotNil(t, blocks[1].Image)
	assert.NotNil(t, blocks[2].Image)
}

func TestBuildContentTruncatesImages(t *testing.T) {
	images := make([]llm.ImageAttachment, MaxImages+5)
	for i := range images {
		images[i] = img("p")
	}

	blocks, err := BuildContent("{DOCUMENT_IMAGE}", nil, images, nil, Options{})
	require.NoError(t, err)

	imageCount := 0
	for _, b := range blocks {
		if b.Image != nil {
			imageCount++
		}
	}
	assert.Equal(t, MaxImages, imageCount)
}

func TestBuildContentFewShot(t *testing.T) {
	template := "Intro {DOCUMENT_CLASS}.\n{FEW_SHOT_EXAMPLES}\nDocument:\n{DOCUMENT_IMAGE}\nGo."
	subs := map[string]string{"DOCUMENT_CLASS": "Invoice"}
	examples := []Example{
		{Name: "ex1", Text: "Example one", Images: []llm.ImageAttachment{img("e1")}},
		{Name: "empty", Text: "   "}, // skipped entirely
		{Name: "ex2", Text: "Example two"},
	}

	blocks, err := BuildContent(template, subs, []llm.ImageAttachment{img("doc")}, examples, Options{StrictImagePlacement: true})
	require.NoError(t, err)

	// Intro text, example one text, example one image, example two text,
	// "Document:" text, document image, trailing text.
	require.Len(t, blocks, 7)
	assert.Equal(t, "Intro Invoice.\n", blocks[0].Text)
	assert.Equal(t, "Example one", blocks[1].Text)
	assert.Equal(t, []byte("e1"), blocks[2].Image.Data)
	assert.Equal(t, "Example two", blocks[3].Text)
	assert.Equal(t, "\nDocument:\n", blocks[4].Text)
	assert.Equal(t, []byte("doc"), blocks[5].Image.Data)
	assert.Equal(t, "\nGo.", blocks[6].Text)
}

func TestBuildContentFewShotImageBeforeExamples(t *testing.T) {
	template := "{DOCUMENT_IMAGE}\nExamples:\n{FEW_SHOT_EXAMPLES}\nEnd."
	examples := []Example{{Name: "ex", Text: "sample"}}

	blocks, err := BuildContent(template, nil, []llm.ImageAttachment{img("doc")}, examples, Options{StrictImagePlacement: true})
	require.NoError(t, err)

	// The document image lands in the half that carries its placeholder and
	// is not duplicated after the examples.
	imageCount := 0
	for _, b := range blocks {
		if b.Image != nil {
			imageCount++
		}
	}
	assert.Equal(t, 1, imageCount)
	assert.NotNil(t, blocks[0].Image)
}
