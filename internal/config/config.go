// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.docsmith/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider selection, model, temperature, embedder (see ai defaults)
//   - Storage: PostgreSQL connection (see storage.go)
//   - RAG: chunking policy and the two retrieval thresholds (see rag.go)
//
// Security: passwords are never logged; MarshalJSON masks sensitive fields.
// Validation: range checks in validation.go with sentinel errors for
// errors.Is() checking.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder dimension does not
	// match the vector schema.
	ErrInvalidEmbedderDimension = errors.New("incompatible embedder dimension")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidChunkPolicy indicates chunk size/overlap are inconsistent.
	ErrInvalidChunkPolicy = errors.New("invalid chunk policy")

	// ErrInvalidThreshold indicates a similarity threshold is out of [0,1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidConfidence indicates a confidence value is out of [0,100].
	ErrInvalidConfidence = errors.New("invalid confidence value")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "ollama" (default), "googleai", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "mistral:7b-instruct", "gemini-2.5-flash"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Embedding configuration
	EmbedderModel     string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`

	// Chunking policy
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval configuration. RetrievalFloor bounds the similarity search
	// itself; RelevanceCutoff gates the answer-mode decision afterwards.
	// They are deliberately separate knobs.
	RetrievalFloor     float64 `mapstructure:"retrieval_floor" json:"retrieval_floor"`
	RelevanceCutoff    float64 `mapstructure:"relevance_cutoff" json:"relevance_cutoff"`
	TopK               int     `mapstructure:"top_k" json:"top_k"`
	MaxContextChars    int     `mapstructure:"max_context_chars" json:"max_context_chars"`
	FallbackConfidence float64 `mapstructure:"fallback_confidence" json:"fallback_confidence"`

	// Upload storage
	UploadDir string `mapstructure:"upload_dir" json:"upload_dir"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docsmith")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast on bad configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderOllama)
	viper.SetDefault("model_name", "mistral:7b-instruct")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Embedding defaults
	viper.SetDefault("embedder_model", "nomic-embed-text")
	viper.SetDefault("embedder_dimension", 768)

	// Chunking defaults
	viper.SetDefault("chunk_size", 800)
	viper.SetDefault("chunk_overlap", 200)

	// Retrieval defaults. The floor stays at 0 so retrieval is broad and the
	// relevance cutoff decides grounded vs general answer mode afterwards.
	viper.SetDefault("retrieval_floor", 0.0)
	viper.SetDefault("relevance_cutoff", 0.4)
	viper.SetDefault("top_k", 5)
	viper.SetDefault("max_context_chars", 3000)
	viper.SetDefault("fallback_confidence", 80.0)

	// Upload defaults
	viper.SetDefault("upload_dir", "uploads")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "docsmith")
	viper.SetDefault("postgres_password", "docsmith_dev_password")
	viper.SetDefault("postgres_db_name", "docsmith")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds runtime override environment variables explicitly.
// API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the Genkit
// provider plugins, not via viper.
func bindEnvVariables() {
	// Hardcoded keys can't fail to bind; a bind error here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "DOCSMITH_PROVIDER")
	mustBind("model_name", "DOCSMITH_MODEL_NAME")
	mustBind("ollama_host", "DOCSMITH_OLLAMA_HOST")
	mustBind("embedder_model", "DOCSMITH_EMBEDDER_MODEL")
	mustBind("relevance_cutoff", "DOCSMITH_RELEVANCE_CUTOFF")
	mustBind("upload_dir", "DOCSMITH_UPLOAD_DIR")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked; longer secrets keep the first
// and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
