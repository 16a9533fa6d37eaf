package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xhad/multibot/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	BackendPGVector = "pgvector"
	BackendChromem  = "chromem"
)

// Config is the complete multibot configuration.
type Config struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Scraper     ScraperConfig     `yaml:"scraper"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Personas    []PersonaConfig   `yaml:"personas"`
}

// EmbedderConfig selects the embedding model.
type EmbedderConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	APIKey    string        `yaml:"-"`
	Dimension int           `yaml:"dimension"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	RateLimit float64       `yaml:"rate_limit"`
}

// LLMConfig selects the model used to refine answers. Provider none turns
// refinement off.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	APIKey      string  `yaml:"-"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	RateLimit   float64 `yaml:"rate_limit"`
}

// VectorStoreConfig describes the vector database and how indexes are created.
type VectorStoreConfig struct {
	// Backend is pgvector or chromem. Empty picks pgvector when a database
	// URL is known and chromem otherwise.
	Backend      string        `yaml:"backend"`
	URL          string        `yaml:"url"`
	Path         string        `yaml:"path"`
	Metric       string        `yaml:"metric"`
	Cloud        string        `yaml:"cloud"`
	Region       string        `yaml:"region"`
	Lists        int           `yaml:"lists"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// RetrievalConfig holds top-k, the relevance threshold and the per-call timeout.
type RetrievalConfig struct {
	TopK               int           `yaml:"top_k"`
	RelevanceThreshold float64       `yaml:"relevance_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
}

type ScraperConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	MaxPages          int      `yaml:"max_pages"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ChunkingConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	MinChunkLength int `yaml:"min_chunk_length"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// PersonaConfig describes one chatbot persona.
type PersonaConfig struct {
	Key            string `yaml:"key"`
	DisplayName    string `yaml:"display_name"`
	IndexName      string `yaml:"index_name"`
	IndexEnv       string `yaml:"index_env"`
	Model          string `yaml:"model"`
	Description    string `yaml:"persona"`
	PromptTemplate string `yaml:"prompt_template"`
}

func (p PersonaConfig) Persona() models.Persona {
	return models.Persona{
		Key:            p.Key,
		DisplayName:    p.DisplayName,
		IndexName:      p.IndexName,
		Description:    p.Description,
		PromptTemplate: p.PromptTemplate,
		Model:          p.Model,
	}
}

// PersonaModels converts the configured personas to models.
func (c *Config) PersonaModels() []models.Persona {
	out := make([]models.Persona, len(c.Personas))
	for i, p := range c.Personas {
		out[i] = p.Persona()
	}
	return out
}

// DefaultPersonas returns the four reference personas.
func DefaultPersonas() []PersonaConfig {
	return []PersonaConfig{
		{
			Key:            "customer_service",
			DisplayName:    "Customer Service",
			IndexName:      "multi-chatbot-dense",
			Description:    "Empathetic, helpful, patient tone.",
			PromptTemplate: "You are a customer support assistant. Use only retrieved documents to answer clearly and politely.",
		},
		{
			Key:            "ecommerce",
			DisplayName:    "E-commerce",
			IndexName:      "ecommerce",
			Description:    "Sales-oriented, friendly, highlight deals and recommendations.",
			PromptTemplate: "You are a shopping assistant. Use only product documents and pricing information.",
		},
		{
			Key:            "saas",
			DisplayName:    "SaaS Platforms",
			IndexName:      "saas",
			Description:    "Technical, step-by-step, precise.",
			PromptTemplate: "You are a SaaS support engineer. Use runbooks and troubleshooting documents only.",
		},
		{
			Key:            "internal",
			DisplayName:    "Internal Teams",
			IndexName:      "internal",
			Description:    "Formal, concise, security-conscious.",
			PromptTemplate: "You assist internal teams. Use only internal memos and policies.",
		},
	}
}

// LoadConfig reads path, or the first config file found in the default
// locations, then applies defaults and environment overrides.
func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/multibot/config.yaml"),
			"/etc/multibot/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(&config)
	mergeWithEnv(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.Model == "" {
		config.Embedder.Model = defaultEmbeddingModel(config.Embedder.Provider)
	}
	if config.Embedder.Dimension == 0 {
		config.Embedder.Dimension = 384
	}
	if config.Embedder.CacheSize == 0 {
		config.Embedder.CacheSize = 1024
	}
	if config.Embedder.CacheTTL == 0 {
		config.Embedder.CacheTTL = time.Hour
	}
	if config.Embedder.APIKeyEnv == "" {
		config.Embedder.APIKeyEnv = defaultKeyEnv(config.Embedder.Provider)
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = defaultChatModel(config.LLM.Provider)
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 512
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}
	if config.LLM.APIKeyEnv == "" {
		config.LLM.APIKeyEnv = defaultKeyEnv(config.LLM.Provider)
	}

	if config.VectorStore.Metric == "" {
		config.VectorStore.Metric = "cosine"
	}
	if config.VectorStore.Cloud == "" {
		config.VectorStore.Cloud = "aws"
	}
	if config.VectorStore.Region == "" {
		config.VectorStore.Region = "us-east-1"
	}
	if config.VectorStore.Lists == 0 {
		config.VectorStore.Lists = 100
	}
	if config.VectorStore.PollInterval == 0 {
		config.VectorStore.PollInterval = time.Second
	}
	if config.VectorStore.ReadyTimeout == 0 {
		config.VectorStore.ReadyTimeout = 2 * time.Minute
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 4
	}
	if config.Retrieval.RelevanceThreshold == 0 {
		config.Retrieval.RelevanceThreshold = 0.10
	}
	if config.Retrieval.Timeout == 0 {
		config.Retrieval.Timeout = 30 * time.Second
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 2
	}
	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 50
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Chunking.ChunkSize == 0 {
		config.Chunking.ChunkSize = 1000
	}
	if config.Chunking.ChunkOverlap == 0 {
		config.Chunking.ChunkOverlap = 200
	}
	if config.Chunking.MinChunkLength == 0 {
		config.Chunking.MinChunkLength = 20
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}

	if len(config.Personas) == 0 {
		config.Personas = DefaultPersonas()
	}
	for i := range config.Personas {
		p := &config.Personas[i]
		if p.DisplayName == "" {
			p.DisplayName = p.Key
		}
		if p.IndexEnv == "" && p.Key != "" {
			p.IndexEnv = "INDEX_" + strings.ToUpper(p.Key)
		}
	}
}

func defaultEmbeddingModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "text-embedding-3-small"
	case "gemini":
		return "text-embedding-004"
	}
	return "all-minilm"
}

func defaultChatModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "gpt-4o-mini"
	case "gemini":
		return "gemini-2.0-flash"
	}
	return "mistral"
}

func defaultKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	}
	return ""
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if strings.EqualFold(config.Embedder.Provider, "ollama") {
			config.Embedder.BaseURL = baseURL
		}
		if strings.EqualFold(config.LLM.Provider, "ollama") {
			config.LLM.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.VectorStore.URL = dbURL
	}
	if addr := os.Getenv("MULTIBOT_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if level := os.Getenv("MULTIBOT_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	if config.Embedder.APIKeyEnv != "" {
		config.Embedder.APIKey = os.Getenv(config.Embedder.APIKeyEnv)
	}
	if config.LLM.APIKeyEnv != "" {
		config.LLM.APIKey = os.Getenv(config.LLM.APIKeyEnv)
	}

	for i := range config.Personas {
		p := &config.Personas[i]
		if p.IndexEnv == "" {
			continue
		}
		if index := os.Getenv(p.IndexEnv); index != "" {
			p.IndexName = index
		}
	}

	if config.VectorStore.Backend == "" {
		if config.VectorStore.URL != "" {
			config.VectorStore.Backend = BackendPGVector
		} else {
			config.VectorStore.Backend = BackendChromem
		}
	}
}
