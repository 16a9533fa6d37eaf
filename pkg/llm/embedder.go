package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// EmbedderConfig represents the configuration for the embedder.
type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	// CacheSize bounds the text→vector cache; zero disables it.
	CacheSize int
	CacheTTL  time.Duration
	RateLimit float64
}

// Embedder turns texts into vectors of a fixed dimension. Results are cached
// by text so repeated queries skip the model.
type Embedder struct {
	client    embeddings.Embedder
	dimension int
	cache     *expirable.LRU[string, []float32]
	limiter   *rate.Limiter
}

// NewEmbedderFrom wraps any langchaingo embedder.
func NewEmbedderFrom(client embeddings.Embedder, config EmbedderConfig) *Embedder {
	e := &Embedder{
		client:    client,
		dimension: config.Dimension,
		limiter:   newLimiter(config.RateLimit, 1),
	}
	if config.CacheSize > 0 {
		e.cache = expirable.NewLRU[string, []float32](config.CacheSize, nil, config.CacheTTL)
	}
	return e
}

// NewEmbedder creates an embedder for config.Provider.
func NewEmbedder(ctx context.Context, config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = DefaultEmbeddingModel
	}

	var client embeddings.Embedder
	switch provider := normalizeProvider(config.Provider); provider {
	case ProviderOllama:
		if config.BaseURL == "" {
			config.BaseURL = DefaultBaseURL
		}
		model, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		client, err = embeddings.NewEmbedder(model)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	case ProviderOpenAI:
		if err := requireKey(provider, config.APIKey); err != nil {
			return nil, err
		}
		opts := []openai.Option{openai.WithToken(config.APIKey), openai.WithEmbeddingModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		client, err = embeddings.NewEmbedder(model)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	case ProviderGemini:
		g, err := newGeminiEmbedder(ctx, config)
		if err != nil {
			return nil, err
		}
		client = g
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	return NewEmbedderFrom(client, config), nil
}

func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		missing []string
		slots   []int
	)
	for i, t := range texts {
		if e.cache != nil {
			if v, ok := e.cache.Get(t); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, t)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}

	vectors, err := e.client.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(missing), err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embed: model returned %d vectors for %d texts", len(vectors), len(missing))
	}

	for j, v := range vectors {
		if e.dimension > 0 && len(v) != e.dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), e.dimension)
		}
		out[slots[j]] = v
		if e.cache != nil {
			e.cache.Add(missing[j], v)
		}
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Probe embeds a sample text and checks the model's output size against the
// configured dimension. A zero dimension is learned from the probe.
func (e *Embedder) Probe(ctx context.Context) error {
	vectors, err := e.client.EmbedDocuments(ctx, []string{"dimension probe"})
	if err != nil {
		return fmt.Errorf("probe embedding model: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("probe embedding model: got %d vectors", len(vectors))
	}

	got := len(vectors[0])
	if e.dimension == 0 {
		e.dimension = got
	}
	if got != e.dimension {
		return fmt.Errorf("%w: model produces %d, configured %d", ErrDimensionMismatch, got, e.dimension)
	}
	log.Debug().Int("dimension", got).Msg("embedding model probed")
	return nil
}

type geminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
}

func newGeminiEmbedder(ctx context.Context, config EmbedderConfig) (*geminiEmbedder, error) {
	if err := requireKey(ProviderGemini, config.APIKey); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}
	return &geminiEmbedder{client: client, model: config.Model, dimension: config.Dimension}, nil
}

func (g *geminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}

	var config *genai.EmbedContentConfig
	if g.dimension > 0 {
		config = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(g.dimension))}
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("no embedding values returned")
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

func (g *geminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
