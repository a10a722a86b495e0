package embedder

import (
	"fmt"
	"os"
	"strconv"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// DefaultDimensions returns the embedding vector size for the given backend.
// Callers that pre-configure a vector store (e.g. Qdrant collection creation)
// should use this rather than hardcoding a value. EMBEDDING_DIMENSIONS always
// takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "openai":
		return defaultOpenAIDimensions
	default:
		return DefaultHashDimensions
	}
}

// Backend returns the resolved embedding backend name: EMBEDDING_PROVIDER,
// defaulting to "local" (the deterministic hash embedder, which needs no
// external service and is what the seed corpus and tests assume).
func Backend() string {
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		return v
	}
	return "local"
}

// NewFromEnv constructs an Embedder from environment variables (the config
// layer applies YAML values as env vars before this runs):
//
//	EMBEDDING_PROVIDER    = local | ollama | openai   (default: local)
//	EMBEDDING_MODEL       — overrides the backend's default model
//	EMBEDDING_DIMENSIONS  — overrides the vector size
//	EMBEDDING_ENDPOINT    — Ollama host or OpenAI base URL override
//	EMBEDDING_API_KEY     — OpenAI key (falls back to OPENAI_API_KEY)
func NewFromEnv() (Embedder, error) {
	switch backend := Backend(); backend {
	case "local", "hash":
		return NewHashEmbedder(getEnvInt("EMBEDDING_DIMENSIONS", DefaultHashDimensions)), nil

	case "ollama":
		host := os.Getenv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	case "openai":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			APIKey:     apiKey,
			BaseURL:    os.Getenv("EMBEDDING_ENDPOINT"),
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: local, ollama, openai", backend)
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the named environment variable parsed as an int, or
// fallback if unset or unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
