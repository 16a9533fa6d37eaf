package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/multibot/internal/types"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeneratorConfig represents the configuration for a generator.
type GeneratorConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	// RateLimit caps outbound requests per second; zero means unlimited.
	RateLimit float64
}

// ChatGenerator generates completions through any langchaingo model.
type ChatGenerator struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
}

// NewChatGenerator creates a generator over a langchaingo model.
func NewChatGenerator(model llms.Model, config GeneratorConfig) *ChatGenerator {
	return &ChatGenerator{
		model:       model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		limiter:     newLimiter(config.RateLimit, 1),
	}
}

func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := wait(ctx, g.limiter); err != nil {
		return "", err
	}

	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// GeminiGenerator calls the Gemini API directly.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	limiter     *rate.Limiter
}

// NewGeminiGenerator creates a generator for the Gemini API.
func NewGeminiGenerator(ctx context.Context, config GeneratorConfig) (*GeminiGenerator, error) {
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
	return &GeminiGenerator{
		client:      client,
		model:       config.Model,
		temperature: float32(config.Temperature),
		maxTokens:   int32(config.MaxTokens),
		limiter:     newLimiter(config.RateLimit, 1),
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := wait(ctx, g.limiter); err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = g.maxTokens
	}

	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// NewGenerator builds the generator for config.Provider. ProviderNone yields
// a nil generator and no error.
func NewGenerator(ctx context.Context, config GeneratorConfig) (types.Generator, error) {
	if config.Model == "" {
		config.Model = DefaultChatModel
	}

	switch provider := normalizeProvider(config.Provider); provider {
	case ProviderNone:
		return nil, nil
	case ProviderOllama:
		if config.BaseURL == "" {
			config.BaseURL = DefaultBaseURL
		}
		model, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return NewChatGenerator(model, config), nil
	case ProviderOpenAI:
		if err := requireKey(provider, config.APIKey); err != nil {
			return nil, err
		}
		opts := []openai.Option{openai.WithToken(config.APIKey), openai.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return NewChatGenerator(model, config), nil
	case ProviderGemini:
		gen, err := NewGeminiGenerator(ctx, config)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
}

// Generators hands out one generator per model name so personas can
// override the default model.
type Generators struct {
	base GeneratorConfig
	// build is swapped in tests.
	build func(context.Context, GeneratorConfig) (types.Generator, error)

	mu    sync.Mutex
	byKey map[string]types.Generator
}

// NewGenerators returns a per-model cache of generators built from base.
func NewGenerators(base GeneratorConfig) *Generators {
	return &Generators{base: base, build: NewGenerator, byKey: make(map[string]types.Generator)}
}

// NewGeneratorsWith is NewGenerators with a custom constructor.
func NewGeneratorsWith(base GeneratorConfig, build func(context.Context, GeneratorConfig) (types.Generator, error)) *Generators {
	g := NewGenerators(base)
	g.build = build
	return g
}

// For returns the generator for model, or the default model when empty.
func (g *Generators) For(ctx context.Context, model string) (types.Generator, error) {
	cfg := g.base
	if model != "" {
		cfg.Model = model
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if gen, ok := g.byKey[cfg.Model]; ok {
		return gen, nil
	}
	gen, err := g.build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("provider", normalizeProvider(cfg.Provider)).Str("model", cfg.Model).Msg("initialized generator")
	g.byKey[cfg.Model] = gen
	return gen, nil
}
