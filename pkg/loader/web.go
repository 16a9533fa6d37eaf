package loader

import (
	"context"
	"fmt"
	"regexp"

	"github.com/xhad/multibot/internal/models"
	"github.com/xhad/multibot/pkg/scraper"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// FindURL returns the first http(s) URL in text, or "".
func FindURL(text string) string {
	return urlPattern.FindString(text)
}

// LoadURL crawls rawURL, chunks every page and loads the chunks into index.
// sc.BaseURL is replaced by rawURL.
func (l *Loader) LoadURL(ctx context.Context, index, rawURL string, sc scraper.ScraperConfig, cc ChunkConfig) (Report, error) {
	sc.BaseURL = rawURL
	s, err := scraper.NewWithConfig(sc)
	if err != nil {
		return Report{Index: index}, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	pages, err := s.Scrape(ctx, rawURL)
	if err != nil && len(pages) == 0 {
		return Report{Index: index}, fmt.Errorf("failed to scrape %s: %w", rawURL, err)
	}

	var docs []models.Document
	for _, page := range pages {
		docs = append(docs, Chunk(page, cc)...)
	}
	return l.LoadDocuments(ctx, index, docs), nil
}
