package loader_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/multibot/pkg/loader"
	"github.com/xhad/multibot/pkg/scraper"
)

func TestFindURL(t *testing.T) {
	assert.Equal(t, "https://docs.example.com/start", loader.FindURL("please read https://docs.example.com/start now"))
	assert.Equal(t, "", loader.FindURL("no links here"))
}

func TestLoadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Runbook</title></head>
			<body><main>Restart the worker when the queue backs up. Check the dashboard first.</main></body></html>`))
	}))
	defer server.Close()

	w := &fakeWriter{}
	l := loader.New(&fakeEmbedder{}, w)

	report, err := l.LoadURL(context.Background(), "saas", server.URL,
		scraper.ScraperConfig{MaxDepth: 1, RateLimit: 100},
		loader.ChunkConfig{ChunkSize: 500})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	doc := w.docs[server.URL]
	assert.Equal(t, "Runbook", doc.Title)
	assert.Equal(t, "Restart the worker when the queue backs up. Check the dashboard first.", doc.Text)
}
