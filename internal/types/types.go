package types

import (
	"context"

	"github.com/xhad/multibot/internal/models"
)

// Embedder turns texts into vectors, one per input, order preserved.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Generator produces a free-text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever is the read side of the vector store used by the chat pipeline.
type Retriever interface {
	Query(ctx context.Context, index string, vector []float32, topK int) ([]models.Match, error)
}

// Writer is the write side of the vector store used by the loader.
type Writer interface {
	Upsert(ctx context.Context, index string, doc models.Document, vector []float32) error
}
