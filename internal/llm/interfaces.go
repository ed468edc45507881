// Package llm provides the chat transport used by assessment and evaluation.
//
// The core components depend only on the Invoker interface; concrete clients
// exist for Amazon Bedrock (Converse API) and OpenAI chat completions. Both
// retry throttling-class errors with exponential backoff and jitter, and
// surface every other error to the caller.
package llm

import "context"

// ContentBlock is one ordered element of a multimodal chat request.
// Exactly one of Text or Image is set.
type ContentBlock struct {
	Text  string
	Image *ImageAttachment
}

// ImageAttachment is an inline image payload.
type ImageAttachment struct {
	Format string // "png", "jpeg", "gif" or "webp"
	Data   []byte
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Text: text}
}

// ImageBlock builds an image content block.
func ImageBlock(format string, data []byte) ContentBlock {
	return ContentBlock{Image: &ImageAttachment{Format: format, Data: data}}
}

// Request describes one chat invocation.
type Request struct {
	ModelID     string
	System      string
	Content     []ContentBlock
	Temperature float64
	TopP        float64
	TopK        int // 0 means provider default
	MaxTokens   int
}

// Usage reports token consumption for one invocation.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the assistant's reply to one invocation.
type Response struct {
	Text  string
	Usage Usage
}

// Invoker is the narrow interface the core components depend on. The
// transport is responsible for retrying throttling-class errors internally.
type Invoker interface {
	Converse(ctx context.Context, req Request) (*Response, error)
}
