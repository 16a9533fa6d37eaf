package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/xhad/multibot/internal/models"
)

const (
	metaTitle     = "title"
	metaText      = "text"
	metaDimension = "dimension"
	metaMetric    = "metric"
)

// errNoEmbeddingFunc backs collections: vectors are always computed by the
// caller, so chromem must never embed on its own.
var errNoEmbeddingFunc = errors.New("chromem collections store precomputed embeddings only")

func noEmbedding(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }

// Chromem is an embedded backend built on chromem-go. With an empty path the
// database lives in memory only.
type Chromem struct {
	db *chromem.DB

	mu   sync.Mutex
	dims map[string]int
}

// NewChromem opens an embedded store. An empty path keeps everything in
// memory.
func NewChromem(path string) (*Chromem, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}
	return &Chromem{db: db, dims: make(map[string]int)}, nil
}

func (c *Chromem) Describe(_ context.Context, name string) (IndexInfo, error) {
	col := c.db.GetCollection(name, noEmbedding)
	if col == nil {
		return IndexInfo{}, nil
	}

	c.mu.Lock()
	dim := c.dims[name]
	c.mu.Unlock()

	return IndexInfo{Exists: true, Ready: true, Dimension: dim, Metric: MetricCosine}, nil
}

func (c *Chromem) CreateIndex(_ context.Context, name string, spec IndexSpec) error {
	if spec.Metric != MetricCosine {
		return fmt.Errorf("metric %q is not supported by chromem backend", spec.Metric)
	}

	metadata := map[string]string{
		metaDimension: strconv.Itoa(spec.Dimension),
		metaMetric:    spec.Metric,
	}
	if _, err := c.db.CreateCollection(name, metadata, noEmbedding); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	c.mu.Lock()
	c.dims[name] = spec.Dimension
	c.mu.Unlock()
	return nil
}

func (c *Chromem) Upsert(ctx context.Context, name string, doc models.Document, vector []float32) error {
	col := c.db.GetCollection(name, noEmbedding)
	if col == nil {
		return fmt.Errorf("collection %q does not exist", name)
	}

	// chromem normalizes in place
	embedding := make([]float32, len(vector))
	copy(embedding, vector)

	err := col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Metadata:  map[string]string{metaTitle: doc.Title, metaText: doc.Text},
		Embedding: embedding,
		Content:   doc.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

func (c *Chromem) Query(ctx context.Context, name string, vector []float32, topK int) ([]models.Match, error) {
	col := c.db.GetCollection(name, noEmbedding)
	if col == nil {
		return nil, fmt.Errorf("collection %q does not exist", name)
	}

	n := min(topK, col.Count())
	if n <= 0 {
		return []models.Match{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)

	results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.Match{
			Score: float64(r.Similarity),
			Document: models.Document{
				ID:    r.ID,
				Title: r.Metadata[metaTitle],
				Text:  r.Metadata[metaText],
			},
		})
	}
	return matches, nil
}

func (c *Chromem) Close() {}
