package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/multibot/internal/models"
	"github.com/xhad/multibot/pkg/store"
)

func TestChromemRoundTrip(t *testing.T) {
	backend, err := store.NewChromem("")
	require.NoError(t, err)

	g := store.NewGateway(backend, store.GatewayConfig{
		Spec:         store.IndexSpec{Dimension: 3},
		PollInterval: time.Millisecond,
	})
	defer g.Close()

	ctx := context.Background()

	got, err := g.Query(ctx, "saas", []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, got, "fresh index has no matches")

	docs := []struct {
		doc models.Document
		vec []float32
	}{
		{models.Document{ID: "billing", Title: "Billing", Text: "Invoices are sent monthly."}, []float32{1, 0, 0}},
		{models.Document{ID: "sso", Title: "SSO", Text: "SAML is supported."}, []float32{0, 1, 0}},
		{models.Document{ID: "api", Title: "API", Text: "Rate limits apply."}, []float32{0.7, 0.7, 0}},
	}
	for _, d := range docs {
		require.NoError(t, g.Upsert(ctx, "saas", d.doc, d.vec))
	}

	got, err = g.Query(ctx, "saas", []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "billing", got[0].Document.ID)
	assert.Equal(t, "Billing", got[0].Document.Title)
	assert.Equal(t, "Invoices are sent monthly.", got[0].Document.Text)
	assert.InDelta(t, 1.0, got[0].Score, 1e-5)
	assert.Equal(t, "api", got[1].Document.ID)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
	assert.GreaterOrEqual(t, got[1].Score, got[2].Score)

	// re-upsert replaces
	replaced := models.Document{ID: "billing", Title: "Billing v2", Text: "Invoices are sent weekly."}
	require.NoError(t, g.Upsert(ctx, "saas", replaced, []float32{1, 0, 0}))

	got, err = g.Query(ctx, "saas", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, replaced, got[0].Document)
}

func TestChromemDescribe(t *testing.T) {
	backend, err := store.NewChromem("")
	require.NoError(t, err)

	ctx := context.Background()
	info, err := backend.Describe(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, info.Exists)

	require.NoError(t, backend.CreateIndex(ctx, "kb", store.IndexSpec{Dimension: 8, Metric: store.MetricCosine}))
	info, err = backend.Describe(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, store.IndexInfo{Exists: true, Ready: true, Dimension: 8, Metric: store.MetricCosine}, info)

	assert.Error(t, backend.CreateIndex(ctx, "dot", store.IndexSpec{Dimension: 8, Metric: "dotproduct"}))
}

func TestChromemPersistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := store.NewChromem(dir)
	require.NoError(t, err)
	g := store.NewGateway(backend, store.GatewayConfig{Spec: store.IndexSpec{Dimension: 2}})
	require.NoError(t, g.Upsert(ctx, "internal", models.Document{ID: "hr", Title: "HR", Text: "PTO policy."}, []float32{0, 1}))

	reopened, err := store.NewChromem(dir)
	require.NoError(t, err)
	got, err := reopened.Query(ctx, "internal", []float32{0, 1}, 4)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "HR", got[0].Document.Title)
}
