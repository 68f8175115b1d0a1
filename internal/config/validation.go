package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and model validation
	validProviders := []string{ProviderOllama, ProviderGoogleAI, ProviderOpenAI}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q, must be one of: ollama, googleai, openai",
			ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 131072 {
		return fmt.Errorf("%w: must be between 1 and 131,072, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.Provider == ProviderOllama {
		if _, err := url.ParseRequestURI(c.OllamaHost); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidOllamaHost, c.OllamaHost, err)
		}
	}

	// 2. Embedding validation
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// The vector column in the schema is fixed-width; the embedder must match.
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d",
			ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}

	// 3. Chunking validation. Overlap strictly smaller than size, checked
	// here once rather than per call.
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunkPolicy, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got overlap=%d size=%d",
			ErrInvalidChunkPolicy, c.ChunkOverlap, c.ChunkSize)
	}

	// 4. Retrieval validation
	if c.RetrievalFloor < 0.0 || c.RetrievalFloor > 1.0 {
		return fmt.Errorf("%w: retrieval_floor must be in [0,1], got %.2f", ErrInvalidThreshold, c.RetrievalFloor)
	}
	if c.RelevanceCutoff < 0.0 || c.RelevanceCutoff > 1.0 {
		return fmt.Errorf("%w: relevance_cutoff must be in [0,1], got %.2f", ErrInvalidThreshold, c.RelevanceCutoff)
	}
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 1 and 50, got %d", ErrInvalidThreshold, c.TopK)
	}
	if c.MaxContextChars < 1 {
		return fmt.Errorf("%w: max_context_chars must be positive, got %d", ErrInvalidThreshold, c.MaxContextChars)
	}
	if c.FallbackConfidence < 0.0 || c.FallbackConfidence > 100.0 {
		return fmt.Errorf("%w: fallback_confidence must be in [0,100], got %.2f",
			ErrInvalidConfidence, c.FallbackConfidence)
	}

	// 5. PostgreSQL validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "docsmith_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q, must be one of: %v", ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
