package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"

	"idp/internal/llm"
	"idp/internal/logger"
)

// TitanEmbedder implements Embedder against Amazon Titan text embeddings.
type TitanEmbedder struct {
	client     *bedrockruntime.Client
	modelID    string
	maxRetries int
	log        zerolog.Logger
}

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewTitanEmbedder creates a Titan embedder using the default AWS credential chain.
func NewTitanEmbedder(ctx context.Context, region, modelID string, maxRetries int) (*TitanEmbedder, error) {
	const op = "NewTitanEmbedder"

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("semantic: %s: failed to load AWS config: %w", op, err)
	}
	return NewTitanEmbedderWithDeps(bedrockruntime.NewFromConfig(cfg), modelID, maxRetries), nil
}

// NewTitanEmbedderWithDeps creates a Titan embedder with an explicit SDK client.
func NewTitanEmbedderWithDeps(client *bedrockruntime.Client, modelID string, maxRetries int) *TitanEmbedder {
	if maxRetries <= 0 {
		maxRetries = 7
	}
	return &TitanEmbedder{
		client:     client,
		modelID:    modelID,
		maxRetries: maxRetries,
		log:        logger.WithComponent("semantic-titan"),
	}
}

// Embed returns the embedding vector for text, retrying throttled attempts.
func (e *TitanEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	const op = "Embed"

	body, err := json.Marshal(titanRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("semantic: %s: encode request: %w", op, err)
	}

	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(e.modelID),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		if err == nil {
			var resp titanResponse
			if err := json.Unmarshal(out.Body, &resp); err != nil {
				return nil, fmt.Errorf("semantic: %s: decode response: %w", op, err)
			}
			return resp.Embedding, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) {
			return nil, fmt.Errorf("semantic: %s (model: %s): %w", op, e.modelID, err)
		}

		delay := llm.Backoff(attempt)
		e.log.Warn().
			Err(err).
			Str("model_id", e.modelID).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Titan throttled request, backing off")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("semantic: %s: %w", op, ctx.Err())
		}
	}

	return nil, fmt.Errorf("semantic: %s (model: %s): retries exhausted: %w", op, e.modelID, lastErr)
}
