package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"idp/internal/logger"
)

// OpenAIClient implements Invoker against the OpenAI chat completions API.
// It exists so local runs and tests can swap providers without touching the
// assessment or evaluation services.
type OpenAIClient struct {
	client     *openai.Client
	maxRetries int
	log        zerolog.Logger
}

// NewOpenAIClient creates an OpenAI transport.
func NewOpenAIClient(apiKey string, maxRetries int) *OpenAIClient {
	return NewOpenAIClientWithDeps(openai.NewClient(apiKey), maxRetries)
}

// NewOpenAIClientWithDeps creates an OpenAI transport with an explicit SDK client.
func NewOpenAIClientWithDeps(client *openai.Client, maxRetries int) *OpenAIClient {
	if maxRetries <= 0 {
		maxRetries = 7
	}
	return &OpenAIClient{
		client:     client,
		maxRetries: maxRetries,
		log:        logger.WithComponent("llm-openai"),
	}
}

// Converse sends one multimodal chat request, retrying rate-limited attempts
// with exponential backoff and jitter.
func (c *OpenAIClient) Converse(ctx context.Context, req Request) (*Response, error) {
	const op = "Converse"

	if req.ModelID == "" {
		return nil, &TransportError{Op: op, Err: ErrMissingModelID}
	}

	chatReq := c.buildRequest(req)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, &TransportError{Op: op, ModelID: req.ModelID, Err: ErrEmptyResponse}
			}
			return &Response{
				Text: resp.Choices[0].Message.Content,
				Usage: Usage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
					TotalTokens:  resp.Usage.TotalTokens,
				},
			}, nil
		}
		lastErr = err
		if !isOpenAIRetryable(err) {
			return nil, &TransportError{Op: op, ModelID: req.ModelID, Err: err}
		}

		delay := Backoff(attempt)
		c.log.Warn().
			Err(err).
			Str("model", req.ModelID).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("OpenAI rate-limited request, backing off")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &TransportError{Op: op, ModelID: req.ModelID, Err: ctx.Err()}
		}
	}

	return nil, &TransportError{
		Op:      op,
		ModelID: req.ModelID,
		Err:     fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, c.maxRetries, lastErr),
	}
}

func (c *OpenAIClient) buildRequest(req Request) openai.ChatCompletionRequest {
	parts := make([]openai.ChatMessagePart, 0, len(req.Content))
	for _, block := range req.Content {
		switch {
		case block.Image != nil:
			dataURL := fmt.Sprintf("data:image/%s;base64,%s",
				block.Image.Format,
				base64.StdEncoding.EncodeToString(block.Image.Data))
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
			})
		case block.Text != "":
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: block.Text,
			})
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})

	return openai.ChatCompletionRequest{
		Model:       req.ModelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
		MaxTokens:   req.MaxTokens,
	}
}

func isOpenAIRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return false
}
