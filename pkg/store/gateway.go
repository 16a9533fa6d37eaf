// Package store fronts the vector database. A Gateway owns index lifecycle
// (lazy creation, readiness, dimension checks) and delegates storage to a
// Backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xhad/multibot/internal/models"
)

const (
	MetricCosine = "cosine"

	DefaultDimension    = 384
	DefaultCloud        = "aws"
	DefaultRegion       = "us-east-1"
	DefaultPollInterval = time.Second
	DefaultReadyTimeout = 2 * time.Minute
)

// IndexSpec describes how a missing index is created.
type IndexSpec struct {
	Dimension int
	Metric    string
	Cloud     string
	Region    string
}

// IndexInfo is what a backend reports about an index. A zero Dimension means
// the backend does not know it.
type IndexInfo struct {
	Exists    bool
	Ready     bool
	Dimension int
	Metric    string
}

// Backend is a vector database that stores documents in named indexes.
type Backend interface {
	Describe(ctx context.Context, name string) (IndexInfo, error)
	CreateIndex(ctx context.Context, name string, spec IndexSpec) error
	Upsert(ctx context.Context, name string, doc models.Document, vector []float32) error
	Query(ctx context.Context, name string, vector []float32, topK int) ([]models.Match, error)
	Close()
}

// GatewayConfig holds the index spec and the readiness poll settings.
type GatewayConfig struct {
	Spec         IndexSpec
	PollInterval time.Duration
	ReadyTimeout time.Duration
}

// Gateway is the single entry point to the vector database for loading and
// retrieval.
type Gateway struct {
	backend Backend
	config  GatewayConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	ready map[string]bool
}

// NewGateway returns a Gateway over backend, filling unset config with defaults.
func NewGateway(backend Backend, config GatewayConfig) *Gateway {
	if config.Spec.Dimension == 0 {
		config.Spec.Dimension = DefaultDimension
	}
	if config.Spec.Metric == "" {
		config.Spec.Metric = MetricCosine
	}
	if config.Spec.Cloud == "" {
		config.Spec.Cloud = DefaultCloud
	}
	if config.Spec.Region == "" {
		config.Spec.Region = DefaultRegion
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = DefaultReadyTimeout
	}

	return &Gateway{
		backend: backend,
		config:  config,
		locks:   make(map[string]*sync.Mutex),
		ready:   make(map[string]bool),
	}
}

// Dimension returns the vector dimension every index must have.
func (g *Gateway) Dimension() int { return g.config.Spec.Dimension }

// Close releases the backend.
func (g *Gateway) Close() { g.backend.Close() }

// EnsureIndex makes sure the named index exists and is ready. Concurrent
// callers for the same name wait on one another, so the index is created at
// most once.
func (g *Gateway) EnsureIndex(ctx context.Context, name string) error {
	if name == "" {
		return &ConfigurationError{Index: name, Err: errors.New("empty index name")}
	}

	lock := g.indexLock(name)
	lock.Lock()
	defer lock.Unlock()

	if g.isReady(name) {
		return nil
	}

	info, err := g.backend.Describe(ctx, name)
	if err != nil {
		return fmt.Errorf("describe index %q: %w", name, err)
	}

	if info.Exists {
		if info.Dimension != 0 && info.Dimension != g.config.Spec.Dimension {
			return &ConfigurationError{
				Index: name,
				Err: fmt.Errorf("%w: index has %d, embedder produces %d",
					ErrDimensionMismatch, info.Dimension, g.config.Spec.Dimension),
			}
		}
		if info.Metric != "" && info.Metric != g.config.Spec.Metric {
			return &ConfigurationError{
				Index: name,
				Err:   fmt.Errorf("index metric is %s, expected %s", info.Metric, g.config.Spec.Metric),
			}
		}
	} else {
		if err := g.backend.CreateIndex(ctx, name, g.config.Spec); err != nil {
			return fmt.Errorf("create index %q: %w", name, err)
		}
		log.Info().
			Str("index", name).
			Int("dimension", g.config.Spec.Dimension).
			Str("metric", g.config.Spec.Metric).
			Msg("created index")
		info.Ready = false
	}

	if !info.Ready {
		if err := g.waitReady(ctx, name); err != nil {
			return err
		}
	}

	g.markReady(name)
	return nil
}

// EnsureIndexes runs EnsureIndex for every name and joins the failures, so a
// misconfigured index is reported before the first query.
func (g *Gateway) EnsureIndexes(ctx context.Context, names ...string) error {
	var errs []error
	for _, name := range names {
		if err := g.EnsureIndex(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Gateway) waitReady(ctx context.Context, name string) error {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, g.config.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(g.config.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		info, err := g.backend.Describe(waitCtx, name)
		if err == nil && info.Exists && info.Ready {
			log.Debug().Str("index", name).Dur("waited", time.Since(start)).Msg("index ready")
			return nil
		}
		lastErr = err

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &IndexProvisioningError{Index: name, Waited: time.Since(start), Err: lastErr}
		case <-ticker.C:
		}
	}
}

// Upsert writes doc into the index, replacing any record with the same id.
// Every failure is reported as *UpsertError.
func (g *Gateway) Upsert(ctx context.Context, index string, doc models.Document, vector []float32) error {
	if doc.ID == "" {
		return &UpsertError{Index: index, ID: doc.ID, Err: errors.New("document id is empty")}
	}
	if len(vector) != g.config.Spec.Dimension {
		return &UpsertError{
			Index: index,
			ID:    doc.ID,
			Err:   fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), g.config.Spec.Dimension),
		}
	}
	if err := g.EnsureIndex(ctx, index); err != nil {
		return &UpsertError{Index: index, ID: doc.ID, Err: err}
	}
	if err := g.backend.Upsert(ctx, index, doc, vector); err != nil {
		return &UpsertError{Index: index, ID: doc.ID, Err: err}
	}
	return nil
}

// Query returns up to topK matches ordered by descending score. An empty
// result with a nil error means nothing matched; a *RetrievalError means the
// store could not be asked.
func (g *Gateway) Query(ctx context.Context, index string, vector []float32, topK int) ([]models.Match, error) {
	if topK <= 0 {
		return []models.Match{}, nil
	}
	if len(vector) != g.config.Spec.Dimension {
		return nil, &RetrievalError{
			Index: index,
			Err:   fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), g.config.Spec.Dimension),
		}
	}
	if err := g.EnsureIndex(ctx, index); err != nil {
		return nil, &RetrievalError{Index: index, Err: err}
	}

	matches, err := g.backend.Query(ctx, index, vector, topK)
	if err != nil {
		return nil, &RetrievalError{Index: index, Err: err}
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []models.Match{}
	}
	return matches, nil
}

// QueryOrEmpty is Query for callers that treat a store failure like an empty
// result. The failure is logged.
func (g *Gateway) QueryOrEmpty(ctx context.Context, index string, vector []float32, topK int) []models.Match {
	matches, err := g.Query(ctx, index, vector, topK)
	if err != nil {
		log.Warn().Err(err).Str("index", index).Msg("query failed, returning no matches")
		return []models.Match{}
	}
	return matches
}

func (g *Gateway) indexLock(name string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[name]
	if !ok {
		l = &sync.Mutex{}
		g.locks[name] = l
	}
	return l
}

func (g *Gateway) isReady(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready[name]
}

func (g *Gateway) markReady(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready[name] = true
}
