package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Orkio RAG core.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
	Embedding EmbeddingConfig
	Chat      ChatConfig
}

type DatabaseConfig struct {
	// URL is the pgvector-enabled Postgres DSN. Empty selects the
	// in-memory store and embedded vector store (local dev, tests).
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type ChunkingConfig struct {
	ChunkSize int
	Overlap   int
}

type RetrievalConfig struct {
	TopK                int
	SimilarityThreshold float64
	MaxCharsPerChunk    int
	FallbackAllowed     bool
	EmbedTimeout        time.Duration
}

type EmbeddingConfig struct {
	// Provider selects the embedding driver: openai or ollama.
	Provider       string
	Model          string
	OpenAIAPIKey   string
	OllamaEndpoint string

	// CacheSize > 0 enables the LRU embedding cache.
	CacheSize int
	CacheTTL  time.Duration
}

type ChatConfig struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaEndpoint  string
	LLMTimeout      time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("ORKIO_PORT", 8080),
		Version: envStr("ORKIO_VERSION", "0.2.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "orkio-core"),
		},
		Chunking: ChunkingConfig{
			ChunkSize: envInt("ORKIO_CHUNK_SIZE", 800),
			Overlap:   envInt("ORKIO_CHUNK_OVERLAP", 200),
		},
		Retrieval: RetrievalConfig{
			TopK:                envInt("ORKIO_RETRIEVAL_TOP_K", 5),
			SimilarityThreshold: envFloat("ORKIO_SIMILARITY_THRESHOLD", 0.6),
			MaxCharsPerChunk:    envInt("ORKIO_CONTEXT_MAX_CHARS", 500),
			FallbackAllowed:     envBool("ORKIO_FALLBACK_ALLOWED", false),
			EmbedTimeout:        envDuration("ORKIO_EMBED_TIMEOUT", 30*time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:       envStr("ORKIO_EMBEDDING_PROVIDER", "openai"),
			Model:          envStr("ORKIO_EMBEDDING_MODEL", "text-embedding-3-small"),
			OpenAIAPIKey:   envStr("OPENAI_API_KEY", ""),
			OllamaEndpoint: envStr("OLLAMA_ENDPOINT", "http://localhost:11434"),
			CacheSize:      envInt("ORKIO_EMBED_CACHE_SIZE", 2048),
			CacheTTL:       envDuration("ORKIO_EMBED_CACHE_TTL", time.Hour),
		},
		Chat: ChatConfig{
			OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
			AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
			OllamaEndpoint:  envStr("OLLAMA_ENDPOINT", "http://localhost:11434"),
			LLMTimeout:      envDuration("ORKIO_LLM_TIMEOUT", 60*time.Second),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
