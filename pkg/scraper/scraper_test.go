package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)
	assert.Equal(t, config.BaseURL, s.config.BaseURL)
	assert.Equal(t, config.MaxDepth, s.config.MaxDepth)
	assert.Equal(t, 50, s.config.MaxPages)

	_, err = NewWithConfig(ScraperConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestShouldProcessURL(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		IgnorePatterns: []string{"/ignore/", "private"},
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/docs/intro", true},
		{"https://example.com/ignore/page.html", false},
		{"https://example.com/private.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
		{"mailto:help@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.shouldProcessURL(tt.url))
		})
	}
}

func TestScrapeWithMockServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
				<head><title>Test Page</title></head>
				<body>
					<nav>Home | Pricing</nav>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html">Link</a>
						<a href="/page2.html#section">Same page</a>
						<a href="/missing.html">Broken</a>
					</main>
				</body>
			</html>
		`))
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><article>Second page text. Cookie Policy</article></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var visited []string
	s, err := NewWithConfig(ScraperConfig{
		BaseURL:    server.URL,
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(u string) { visited = append(visited, u) },
	})
	require.NoError(t, err)

	docs, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, server.URL, docs[0].ID)
	assert.Equal(t, "Test Page", docs[0].Title)
	assert.Contains(t, docs[0].Text, "Test Content")
	assert.Contains(t, docs[0].Text, "This is a test paragraph.")
	assert.NotContains(t, docs[0].Text, "Pricing")

	assert.Equal(t, server.URL+"/page2.html", docs[1].ID)
	assert.Equal(t, server.URL+"/page2.html", docs[1].Title, "untitled pages fall back to the url")
	assert.Equal(t, "Second page text.", docs[1].Text)

	assert.Equal(t, []string{server.URL, server.URL + "/page2.html", server.URL + "/missing.html"}, visited)
}

func TestScrapeCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>hello</body></html>`))
	}))
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Scrape(ctx, server.URL)
	assert.Error(t, err)
}
