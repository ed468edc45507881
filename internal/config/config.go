package config

import (
	"fmt"
	"os"
	"strconv"

	"idp/internal/logger"
)

type Config struct {
	// AWS Configuration
	AWSRegion string

	// Bedrock model configuration
	AssessmentModelID string
	EvaluationModelID string
	EmbeddingModelID  string

	// LLM provider selection: "bedrock" or "openai"
	LLMProvider       string
	EmbeddingProvider string
	OpenAIAPIKey      string
	OpenAIModel       string

	// Inference parameters
	Temperature float64
	TopP        float64
	MaxTokens   int

	// Retry behavior for throttled LLM calls
	MaxRetries int

	// Assessment / evaluation defaults
	DefaultConfidenceThreshold float64
	DefaultEvaluationThreshold float64
	ExactMatchCaseSensitive    bool

	// Worker pools
	MaxSectionWorkers   int
	MaxAttributeWorkers int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		AssessmentModelID: getEnv("ASSESSMENT_MODEL_ID", "anthropic.claude-3-5-sonnet-20241022-v2:0"),
		EvaluationModelID: getEnv("EVALUATION_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),
		EmbeddingModelID:  getEnv("EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),

		LLMProvider:       getEnv("LLM_PROVIDER", "bedrock"),
		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "bedrock"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		Temperature: getEnvFloat("LLM_TEMPERATURE", 0.0),
		TopP:        getEnvFloat("LLM_TOP_P", 0.1),
		MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4096),

		MaxRetries: getEnvInt("LLM_MAX_RETRIES", 7),

		DefaultConfidenceThreshold: getEnvFloat("DEFAULT_CONFIDENCE_THRESHOLD", 0.9),
		DefaultEvaluationThreshold: getEnvFloat("DEFAULT_EVALUATION_THRESHOLD", 0.8),
		ExactMatchCaseSensitive:    getEnvBool("EXACT_MATCH_CASE_SENSITIVE", true),

		MaxSectionWorkers:   getEnvInt("MAX_SECTION_WORKERS", 6),
		MaxAttributeWorkers: getEnvInt("MAX_ATTRIBUTE_WORKERS", 10),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case "bedrock":
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required when LLM_PROVIDER=bedrock")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q (expected bedrock or openai)", c.LLMProvider)
	}

	switch c.EmbeddingProvider {
	case "bedrock":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unsupported EMBEDDING_PROVIDER %q (expected bedrock or openai)", c.EmbeddingProvider)
	}

	if c.MaxSectionWorkers <= 0 {
		return fmt.Errorf("MAX_SECTION_WORKERS must be positive, got %d", c.MaxSectionWorkers)
	}
	if c.MaxAttributeWorkers <= 0 {
		return fmt.Errorf("MAX_ATTRIBUTE_WORKERS must be positive, got %d", c.MaxAttributeWorkers)
	}
	if c.DefaultConfidenceThreshold < 0 || c.DefaultConfidenceThreshold > 1 {
		return fmt.Errorf("DEFAULT_CONFIDENCE_THRESHOLD must be in [0,1], got %g", c.DefaultConfidenceThreshold)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
