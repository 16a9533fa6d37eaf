package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError represents a single invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	providers         = map[string]bool{"ollama": true, "openai": true, "gemini": true}
	generatorProvider = map[string]bool{"ollama": true, "openai": true, "gemini": true, "none": true}
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, format string, args ...any) {
		errors = append(errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Embedder
	if !providers[strings.ToLower(c.Embedder.Provider)] {
		add("embedder.provider", "unknown provider %q", c.Embedder.Provider)
	}
	if c.Embedder.Dimension < 1 {
		add("embedder.dimension", "dimension must be positive")
	}
	if c.Embedder.CacheSize < 0 {
		add("embedder.cache_size", "cache_size cannot be negative")
	}
	if needsKey(c.Embedder.Provider) && c.Embedder.APIKey == "" {
		add("embedder.api_key_env", "%s is not set", c.Embedder.APIKeyEnv)
	}
	if c.Embedder.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Embedder.BaseURL); err != nil {
			add("embedder.base_url", "invalid base URL")
		}
	}

	// LLM
	if !generatorProvider[strings.ToLower(c.LLM.Provider)] {
		add("llm.provider", "unknown provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		add("llm.max_tokens", "max_tokens must be between 1 and 8192")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature", "temperature must be between 0 and 2")
	}
	if needsKey(c.LLM.Provider) && c.LLM.APIKey == "" {
		add("llm.api_key_env", "%s is not set", c.LLM.APIKeyEnv)
	}
	if c.LLM.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
			add("llm.base_url", "invalid base URL")
		}
	}

	// Vector store
	switch c.VectorStore.Backend {
	case BackendPGVector:
		if c.VectorStore.URL == "" {
			add("vector_store.url", "database URL is required for pgvector")
		} else if _, err := url.Parse(c.VectorStore.URL); err != nil {
			add("vector_store.url", "invalid database URL")
		}
	case BackendChromem:
	default:
		add("vector_store.backend", "unknown backend %q", c.VectorStore.Backend)
	}
	if c.VectorStore.Metric != "cosine" {
		add("vector_store.metric", "only cosine is supported")
	}
	if c.VectorStore.PollInterval <= 0 {
		add("vector_store.poll_interval", "poll_interval must be positive")
	}
	if c.VectorStore.ReadyTimeout < c.VectorStore.PollInterval {
		add("vector_store.ready_timeout", "ready_timeout must be at least poll_interval")
	}

	// Retrieval
	if c.Retrieval.TopK < 1 {
		add("retrieval.top_k", "top_k must be positive")
	}
	if c.Retrieval.RelevanceThreshold < -1 || c.Retrieval.RelevanceThreshold > 1 {
		add("retrieval.relevance_threshold", "relevance_threshold must be between -1 and 1")
	}
	if c.Retrieval.Timeout <= 0 {
		add("retrieval.timeout", "timeout must be positive")
	}

	// Scraper
	if c.Scraper.MaxDepth < 1 {
		add("scraper.max_depth", "max_depth must be positive")
	}
	if c.Scraper.RateLimit <= 0 {
		add("scraper.rate_limit", "rate_limit must be positive")
	}
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			add("scraper.allowed_extensions", "invalid extension format: %s", ext)
		}
	}

	// Chunking
	if c.Chunking.ChunkSize < 1 {
		add("chunking.chunk_size", "chunk_size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		add("chunking.chunk_overlap", "chunk_overlap must be non-negative and less than chunk_size")
	}

	// Log
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "unknown level %q", c.Log.Level)
	}

	// Personas
	if len(c.Personas) == 0 {
		add("personas", "at least one persona is required")
	}
	seen := make(map[string]bool)
	for i, p := range c.Personas {
		field := fmt.Sprintf("personas[%d]", i)
		if p.Key == "" {
			add(field+".key", "key is required")
			continue
		}
		if seen[p.Key] {
			add(field+".key", "duplicate key %q", p.Key)
		}
		seen[p.Key] = true
		if p.IndexName == "" {
			add(field+".index_name", "index name is required (set it or %s)", p.IndexEnv)
		}
	}

	return errors
}

func needsKey(provider string) bool {
	p := strings.ToLower(provider)
	return p == "openai" || p == "gemini"
}
