package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"idp/internal/config"
	"idp/internal/llm"
	"idp/internal/s3store"
	"idp/internal/semantic"
	"idp/pkg/models"
)

// storeFor picks the blob store for a URI: S3 for s3:// URIs, the local
// filesystem otherwise.
func storeFor(ctx context.Context, cfg *config.Config, uri string) (s3store.Store, error) {
	if strings.HasPrefix(uri, "s3://") {
		return s3store.New(ctx, cfg.AWSRegion)
	}
	return s3store.NewFileStore(), nil
}

// buildInvoker creates the chat transport for the configured provider.
func buildInvoker(ctx context.Context, cfg *config.Config) (llm.Invoker, error) {
	switch cfg.LLMProvider {
	case "openai":
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.MaxRetries), nil
	default:
		return llm.NewBedrockClient(ctx, cfg.AWSRegion, cfg.MaxRetries)
	}
}

// buildEmbedder creates the embedder for the configured provider.
func buildEmbedder(ctx context.Context, cfg *config.Config) (semantic.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return semantic.NewOpenAIEmbedder(cfg.OpenAIAPIKey, ""), nil
	default:
		return semantic.NewTitanEmbedder(ctx, cfg.AWSRegion, cfg.EmbeddingModelID, cfg.MaxRetries)
	}
}

// loadDocument reads a document record from the store.
func loadDocument(ctx context.Context, store s3store.Store, uri string) (*models.Document, error) {
	var doc models.Document
	if err := store.ReadJSON(ctx, uri, &doc); err != nil {
		return nil, fmt.Errorf("load document record %s: %w", uri, err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("document record %s has no id", uri)
	}
	return &doc, nil
}

// signalContext creates a context with a timeout that is also canceled on
// SIGINT/SIGTERM for graceful shutdown.
func signalContext(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
