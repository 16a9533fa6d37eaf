// Package loader bulk-loads documents into a persona's vector index: each
// item is embedded and upserted on its own, and failures are counted rather
// than aborting the batch.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xhad/multibot/internal/models"
	"github.com/xhad/multibot/internal/types"
)

// DefaultFiles maps the reference personas to their seed data files.
var DefaultFiles = map[string]string{
	"customer_service": "customer_service.json",
	"ecommerce":        "ecommerce.json",
	"saas":             "saas.json",
	"internal":         "internal.json",
}

// Item is one entry of a JSON batch. Text is decoded loosely so a malformed
// entry fails alone instead of failing the whole file.
type Item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  any    `json:"text"`
}

// ItemFailure records why one item was not loaded.
type ItemFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Report summarizes a batch load.
type Report struct {
	Index     string        `json:"index"`
	Total     int           `json:"total"`
	Succeeded int           `json:"loaded"`
	Failed    int           `json:"failed"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// Loader embeds documents and writes them to an index.
type Loader struct {
	embedder types.Embedder
	writer   types.Writer
	timeout  time.Duration
	progress func(Report)
}

// Option configures a Loader.
type Option func(*Loader)

// WithTimeout bounds the embed and upsert of each item.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithProgress is called after every item with the running report.
func WithProgress(fn func(Report)) Option {
	return func(l *Loader) { l.progress = fn }
}

// New returns a Loader with a 30s per-item timeout.
func New(embedder types.Embedder, writer types.Writer, opts ...Option) *Loader {
	l := &Loader{embedder: embedder, writer: writer, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Parse decodes a JSON array of items.
func Parse(r io.Reader) ([]Item, error) {
	var items []Item
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return items, nil
}

// LoadFile loads a JSON batch file into index.
func (l *Loader) LoadFile(ctx context.Context, path, index string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{Index: index}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	items, err := Parse(f)
	if err != nil {
		return Report{Index: index}, fmt.Errorf("%s: %w", path, err)
	}
	return l.Load(ctx, index, items), nil
}

// Load embeds and upserts every item. It stops early only when ctx is done;
// the remaining items are then reported as failed.
func (l *Loader) Load(ctx context.Context, index string, items []Item) Report {
	report := Report{Index: index, Total: len(items)}

	for _, item := range items {
		err := ctx.Err()
		if err == nil {
			err = l.loadItem(ctx, index, item)
		}
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, ItemFailure{ID: item.ID, Error: err.Error()})
			log.Warn().Err(err).Str("index", index).Str("id", item.ID).Msg("failed to load document")
		} else {
			report.Succeeded++
		}
		if l.progress != nil {
			l.progress(report)
		}
	}

	log.Info().
		Str("index", index).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("load finished")
	return report
}

// LoadDocuments loads already-typed documents.
func (l *Loader) LoadDocuments(ctx context.Context, index string, docs []models.Document) Report {
	items := make([]Item, len(docs))
	for i, d := range docs {
		items[i] = Item{ID: d.ID, Title: d.Title, Text: d.Text}
	}
	return l.Load(ctx, index, items)
}

func (l *Loader) loadItem(ctx context.Context, index string, item Item) error {
	text, ok := item.Text.(string)
	if !ok {
		return fmt.Errorf("unsupported text type %T", item.Text)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	vectors, err := l.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("embed: got %d vectors", len(vectors))
	}

	doc := models.Document{ID: item.ID, Title: item.Title, Text: text}
	return l.writer.Upsert(ctx, index, doc, vectors[0])
}
