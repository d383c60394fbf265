// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// LLM provider settings.
	AnthropicAPIKey       string
	AnthropicWeakModel    string
	AnthropicPlanningModel string
	AnthropicDeveloperModel string
	LLMDebug              bool

	// Catalog settings.
	DatasourcesPath        string
	SchemasDir             string
	PromptsDir             string
	CatalogSemanticThreshold int

	// Optional persistent session store.
	DatabaseURL string // empty = in-memory session store

	// Optional semantic catalog backends.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Optional embedding provider for catalog semantic search. Empty
	// OpenAIAPIKey means a noop embedder that returns zero vectors. With
	// no semantic index configured either, RelevantTables returns every
	// table; with a Qdrant or pgvector index, the zero vectors are still
	// indexed and searched.
	OpenAIAPIKey         string
	OpenAIEmbeddingModel string
	EmbeddingDimensions  int

	// OTEL settings.
	OTELEndpoint  string
	OTELInsecure  bool
	ServiceName   string

	// Operational settings.
	LogLevel     string
	TurnDeadline time.Duration

	// Rate limiting for the message-posting endpoint, keyed by client IP.
	// Set RateLimitRPS to 0 to disable.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                     envInt("SQLORC_PORT", 8080),
		ReadTimeout:              envDuration("SQLORC_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:             envDuration("SQLORC_WRITE_TIMEOUT", 30*time.Second),
		AnthropicAPIKey:          envStr("ANTHROPIC_API_KEY", ""),
		AnthropicWeakModel:       envStr("ANTHROPIC_WEAK_MODEL", "claude-haiku-4-5"),
		AnthropicPlanningModel:   envStr("ANTHROPIC_PLANNING_MODEL", "claude-sonnet-4-5-20250929"),
		AnthropicDeveloperModel:  envStr("ANTHROPIC_DEVELOPER_MODEL", "claude-sonnet-4-5-20250929"),
		LLMDebug:                 envBool("SQLORC_LLM_DEBUG", false),
		DatasourcesPath:          envStr("SQLORC_DATASOURCES_PATH", "knowledge/datasources.yaml"),
		SchemasDir:               envStr("SQLORC_SCHEMAS_DIR", "knowledge/data_schemas"),
		PromptsDir:               envStr("SQLORC_PROMPTS_DIR", "knowledge/prompts"),
		CatalogSemanticThreshold: envInt("CATALOG_SEMANTIC_THRESHOLD", 25),
		DatabaseURL:              envStr("DATABASE_URL", ""),
		QdrantURL:                envStr("QDRANT_URL", ""),
		QdrantAPIKey:             envStr("QDRANT_API_KEY", ""),
		QdrantCollection:         envStr("QDRANT_COLLECTION", "sqlorc_tables"),
		OpenAIAPIKey:             envStr("OPENAI_API_KEY", ""),
		OpenAIEmbeddingModel:     envStr("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions:      envInt("EMBEDDING_DIMENSIONS", 1536),
		OTELEndpoint:             envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:             envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		ServiceName:              envStr("OTEL_SERVICE_NAME", "sqlorc"),
		LogLevel:                 envStr("SQLORC_LOG_LEVEL", "info"),
		TurnDeadline:             envDuration("SQLORC_TURN_DEADLINE", 60*time.Second),
		RateLimitRPS:             envFloat("SQLORC_RATE_LIMIT_RPS", 2),
		RateLimitBurst:           envInt("SQLORC_RATE_LIMIT_BURST", 10),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("config: ANTHROPIC_API_KEY is required")
	}
	if c.CatalogSemanticThreshold <= 0 {
		return fmt.Errorf("config: CATALOG_SEMANTIC_THRESHOLD must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
