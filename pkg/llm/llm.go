// Package llm adapts hosted language and embedding models to the small
// interfaces in internal/types. Ollama and OpenAI go through langchaingo,
// Gemini through the genai SDK.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	// ProviderNone disables refinement; answers stay extractive.
	ProviderNone = "none"

	DefaultBaseURL        = "http://localhost:11434"
	DefaultChatModel      = "mistral"
	DefaultEmbeddingModel = "all-minilm"
)

var (
	// ErrUnavailable is returned when a provider has no credentials.
	ErrUnavailable = errors.New("llm provider unavailable")
	// ErrDimensionMismatch means the embedding model returned vectors of an
	// unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

func normalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return ProviderOllama
	}
	return p
}

func requireKey(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s: %w: api key not set", provider, ErrUnavailable)
	}
	return nil
}

// newLimiter returns nil when perSecond is not positive, meaning unlimited.
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
