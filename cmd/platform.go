package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xhad/multibot/pkg/bot"
	cfgPkg "github.com/xhad/multibot/pkg/config"
	"github.com/xhad/multibot/pkg/llm"
	"github.com/xhad/multibot/pkg/loader"
	"github.com/xhad/multibot/pkg/scraper"
	"github.com/xhad/multibot/pkg/store"
)

// platform holds the wired components shared by every subcommand.
type platform struct {
	config   *cfgPkg.Config
	embedder *llm.Embedder
	gateway  *store.Gateway
	bot      *bot.Orchestrator
	loader   *loader.Loader
}

func newPlatform(ctx context.Context, cfg *cfgPkg.Config, opts ...loader.Option) (*platform, error) {
	embedder, err := llm.NewEmbedder(ctx, llm.EmbedderConfig{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    cfg.Embedder.APIKey,
		Dimension: cfg.Embedder.Dimension,
		CacheSize: cfg.Embedder.CacheSize,
		CacheTTL:  cfg.Embedder.CacheTTL,
		RateLimit: cfg.Embedder.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if err := embedder.Probe(ctx); err != nil {
		return nil, fmt.Errorf("embedding model check failed: %w", err)
	}

	backend, err := newBackend(ctx, cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	gateway := store.NewGateway(backend, store.GatewayConfig{
		Spec: store.IndexSpec{
			Dimension: embedder.Dimension(),
			Metric:    cfg.VectorStore.Metric,
			Cloud:     cfg.VectorStore.Cloud,
			Region:    cfg.VectorStore.Region,
		},
		PollInterval: cfg.VectorStore.PollInterval,
		ReadyTimeout: cfg.VectorStore.ReadyTimeout,
	})

	registry, err := bot.NewRegistry(cfg.PersonaModels())
	if err != nil {
		gateway.Close()
		return nil, fmt.Errorf("invalid personas: %w", err)
	}

	indexes := make([]string, 0, len(registry.List()))
	for _, p := range registry.List() {
		indexes = append(indexes, p.IndexName)
	}
	if err := gateway.EnsureIndexes(ctx, indexes...); err != nil {
		gateway.Close()
		return nil, fmt.Errorf("vector store check failed: %w", err)
	}

	var generators bot.GeneratorSource
	if cfg.LLM.Provider != llm.ProviderNone {
		generators = llm.NewGenerators(llm.GeneratorConfig{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			RateLimit:   cfg.LLM.RateLimit,
		})
	}

	orch := bot.NewOrchestrator(registry, bot.NewSessionStore(registry.Keys()), embedder, gateway, generators, bot.Config{
		TopK:               cfg.Retrieval.TopK,
		RelevanceThreshold: cfg.Retrieval.RelevanceThreshold,
		Timeout:            cfg.Retrieval.Timeout,
	})

	log.Info().
		Str("embedder", cfg.Embedder.Provider).
		Int("dimension", embedder.Dimension()).
		Str("llm", cfg.LLM.Provider).
		Str("vector_store", cfg.VectorStore.Backend).
		Int("personas", len(registry.List())).
		Msg("platform ready")

	return &platform{
		config:   cfg,
		embedder: embedder,
		gateway:  gateway,
		bot:      orch,
		loader:   loader.New(embedder, gateway, append([]loader.Option{loader.WithTimeout(cfg.Retrieval.Timeout)}, opts...)...),
	}, nil
}

func newBackend(ctx context.Context, cfg cfgPkg.VectorStoreConfig) (store.Backend, error) {
	switch cfg.Backend {
	case cfgPkg.BackendPGVector:
		b, err := store.NewPGVector(ctx, store.PGVectorConfig{ConnString: cfg.URL, Lists: cfg.Lists})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		return b, nil
	default:
		b, err := store.NewChromem(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		return b, nil
	}
}

func (p *platform) Close() {
	p.gateway.Close()
}

func (p *platform) scraperConfig() scraper.ScraperConfig {
	sc := p.config.Scraper
	return scraper.ScraperConfig{
		MaxDepth:          sc.MaxDepth,
		MaxPages:          sc.MaxPages,
		RateLimit:         sc.RateLimit,
		IgnorePatterns:    sc.IgnorePatterns,
		AllowedExtensions: sc.AllowedExtensions,
	}
}

func (p *platform) chunkConfig() loader.ChunkConfig {
	cc := p.config.Chunking
	return loader.ChunkConfig{
		ChunkSize:      cc.ChunkSize,
		ChunkOverlap:   cc.ChunkOverlap,
		MinChunkLength: cc.MinChunkLength,
	}
}
