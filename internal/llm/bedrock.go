package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog"

	"idp/internal/logger"
)

// BedrockClient implements Invoker against the Amazon Bedrock Converse API.
type BedrockClient struct {
	client     *bedrockruntime.Client
	maxRetries int
	log        zerolog.Logger
}

// NewBedrockClient creates a Bedrock transport using the default AWS
// credential chain for the given region.
func NewBedrockClient(ctx context.Context, region string, maxRetries int) (*BedrockClient, error) {
	const op = "NewBedrockClient"

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load AWS config: %w", op, err)
	}
	return NewBedrockClientWithDeps(bedrockruntime.NewFromConfig(cfg), maxRetries), nil
}

// NewBedrockClientWithDeps creates a Bedrock transport with an explicit SDK client.
func NewBedrockClientWithDeps(client *bedrockruntime.Client, maxRetries int) *BedrockClient {
	if maxRetries <= 0 {
		maxRetries = 7
	}
	return &BedrockClient{
		client:     client,
		maxRetries: maxRetries,
		log:        logger.WithComponent("llm-bedrock"),
	}
}

// Converse sends one multimodal chat request, retrying throttled attempts
// with exponential backoff and jitter. Non-throttling errors surface
// immediately.
func (c *BedrockClient) Converse(ctx context.Context, req Request) (*Response, error) {
	const op = "Converse"

	if req.ModelID == "" {
		return nil, &TransportError{Op: op, Err: ErrMissingModelID}
	}

	input, err := c.buildInput(req)
	if err != nil {
		return nil, &TransportError{Op: op, ModelID: req.ModelID, Err: err}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		out, err := c.client.Converse(ctx, input)
		if err == nil {
			return c.parseOutput(req.ModelID, out)
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, &TransportError{Op: op, ModelID: req.ModelID, Err: err}
		}

		delay := Backoff(attempt)
		c.log.Warn().
			Err(err).
			Str("model_id", req.ModelID).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Bedrock throttled request, backing off")
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

func (c *BedrockClient) buildInput(req Request) (*bedrockruntime.ConverseInput, error) {
	content := make([]types.ContentBlock, 0, len(req.Content))
	for i, block := range req.Content {
		switch {
		case block.Image != nil:
			format, err := imageFormat(block.Image.Format)
			if err != nil {
				return nil, fmt.Errorf("content block %d: %w", i, err)
			}
			content = append(content, &types.ContentBlockMemberImage{
				Value: types.ImageBlock{
					Format: format,
					Source: &types.ImageSourceMemberBytes{Value: block.Image.Data},
				},
			})
		case block.Text != "":
			content = append(content, &types.ContentBlockMemberText{Value: block.Text})
		}
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("request has no content blocks")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.ModelID),
		Messages: []types.Message{
			{Role: types.ConversationRoleUser, Content: content},
		},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
			TopP:        aws.Float32(float32(req.TopP)),
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.TopK > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(map[string]any{
			"top_k": req.TopK,
		})
	}
	return input, nil
}

func (c *BedrockClient) parseOutput(modelID string, out *bedrockruntime.ConverseOutput) (*Response, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, &TransportError{Op: "Converse", ModelID: modelID, Err: ErrEmptyResponse}
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	if sb.Len() == 0 {
		return nil, &TransportError{Op: "Converse", ModelID: modelID, Err: ErrEmptyResponse}
	}

	resp := &Response{Text: sb.String()}
	if out.Usage != nil {
		resp.Usage = Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

func imageFormat(format string) (types.ImageFormat, error) {
	switch strings.ToLower(format) {
	case "png":
		return types.ImageFormatPng, nil
	case "jpeg", "jpg":
		return types.ImageFormatJpeg, nil
	case "gif":
		return types.ImageFormatGif, nil
	case "webp":
		return types.ImageFormatWebp, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", format)
	}
}
