package store_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/multibot/internal/models"
	"github.com/xhad/multibot/pkg/store"
)

type fakeBackend struct {
	mu          sync.Mutex
	indexes     map[string]store.IndexInfo
	creates     atomic.Int32
	readyAfter  int
	describes   int
	describeErr error
	upsertErr   error
	queryErr    error
	matches     []models.Match
	upserted    []models.Document
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{indexes: make(map[string]store.IndexInfo)}
}

func (f *fakeBackend) Describe(_ context.Context, name string) (store.IndexInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.describeErr != nil {
		return store.IndexInfo{}, f.describeErr
	}
	info := f.indexes[name]
	if info.Exists && !info.Ready {
		f.describes++
		if f.readyAfter >= 0 && f.describes > f.readyAfter {
			info.Ready = true
			f.indexes[name] = info
		}
	}
	return info, nil
}

func (f *fakeBackend) CreateIndex(_ context.Context, name string, spec store.IndexSpec) error {
	f.creates.Add(1)
	time.Sleep(5 * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexes[name] = store.IndexInfo{Exists: true, Dimension: spec.Dimension, Metric: spec.Metric}
	return nil
}

func (f *fakeBackend) Upsert(_ context.Context, _ string, doc models.Document, _ []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, doc)
	return nil
}

func (f *fakeBackend) Query(context.Context, string, []float32, int) ([]models.Match, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeBackend) Close() {}

func newGateway(b store.Backend) *store.Gateway {
	return store.NewGateway(b, store.GatewayConfig{
		Spec:         store.IndexSpec{Dimension: 3},
		PollInterval: time.Millisecond,
		ReadyTimeout: 200 * time.Millisecond,
	})
}

func TestEnsureIndexCreatesOnce(t *testing.T) {
	b := newFakeBackend()
	g := newGateway(b)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.EnsureIndex(context.Background(), "ecommerce")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), b.creates.Load())
}

func TestEnsureIndexPollsUntilReady(t *testing.T) {
	b := newFakeBackend()
	b.readyAfter = 3
	g := newGateway(b)

	require.NoError(t, g.EnsureIndex(context.Background(), "saas"))
	assert.GreaterOrEqual(t, b.describes, 3)
}

func TestEnsureIndexProvisioningTimeout(t *testing.T) {
	b := newFakeBackend()
	b.readyAfter = -1
	g := newGateway(b)

	err := g.EnsureIndex(context.Background(), "internal")

	var perr *store.IndexProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "internal", perr.Index)
}

func TestEnsureIndexDimensionMismatch(t *testing.T) {
	b := newFakeBackend()
	b.indexes["legacy"] = store.IndexInfo{Exists: true, Ready: true, Dimension: 1536, Metric: store.MetricCosine}
	g := newGateway(b)

	err := g.EnsureIndex(context.Background(), "legacy")

	var cerr *store.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
	assert.Equal(t, int32(0), b.creates.Load())
}

func TestEnsureIndexesReportsMisconfiguredIndex(t *testing.T) {
	b := newFakeBackend()
	b.indexes["saas"] = store.IndexInfo{Exists: true, Ready: true, Dimension: 768, Metric: store.MetricCosine}
	g := newGateway(b)

	err := g.EnsureIndexes(context.Background(), "ecommerce", "saas", "internal")
	require.Error(t, err)

	var cfgErr *store.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "saas", cfgErr.Index)
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
	assert.Equal(t, int32(2), b.creates.Load(), "healthy indexes are still provisioned")

	require.NoError(t, g.EnsureIndexes(context.Background(), "ecommerce", "internal"))
}

func TestEnsureIndexUnknownDimensionAccepted(t *testing.T) {
	b := newFakeBackend()
	b.indexes["kb"] = store.IndexInfo{Exists: true, Ready: true}
	g := newGateway(b)

	assert.NoError(t, g.EnsureIndex(context.Background(), "kb"))
}

func TestUpsertErrors(t *testing.T) {
	t.Run("wrong dimension", func(t *testing.T) {
		g := newGateway(newFakeBackend())
		err := g.Upsert(context.Background(), "kb", models.Document{ID: "1"}, []float32{1, 2})

		var uerr *store.UpsertError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, "1", uerr.ID)
		assert.ErrorIs(t, err, store.ErrDimensionMismatch)
	})

	t.Run("backend failure", func(t *testing.T) {
		b := newFakeBackend()
		b.upsertErr = errors.New("disk full")
		g := newGateway(b)

		err := g.Upsert(context.Background(), "kb", models.Document{ID: "2"}, []float32{1, 2, 3})

		var uerr *store.UpsertError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, "kb", uerr.Index)
		assert.ErrorIs(t, err, b.upsertErr)
	})

	t.Run("missing id", func(t *testing.T) {
		g := newGateway(newFakeBackend())
		err := g.Upsert(context.Background(), "kb", models.Document{}, []float32{1, 2, 3})

		var uerr *store.UpsertError
		assert.ErrorAs(t, err, &uerr)
	})
}

func TestUpsertCreatesIndexLazily(t *testing.T) {
	b := newFakeBackend()
	g := newGateway(b)

	doc := models.Document{ID: "a", Title: "A", Text: "alpha"}
	require.NoError(t, g.Upsert(context.Background(), "kb", doc, []float32{1, 0, 0}))

	assert.Equal(t, int32(1), b.creates.Load())
	assert.Equal(t, []models.Document{doc}, b.upserted)
}

func TestQueryResults(t *testing.T) {
	b := newFakeBackend()
	b.indexes["kb"] = store.IndexInfo{Exists: true, Ready: true, Dimension: 3}
	b.matches = []models.Match{
		{Score: 0.9, Document: models.Document{ID: "a"}},
		{Score: 0.5, Document: models.Document{ID: "b"}},
		{Score: 0.1, Document: models.Document{ID: "c"}},
	}
	g := newGateway(b)

	got, err := g.Query(context.Background(), "kb", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	b.matches = nil
	got, err = g.Query(context.Background(), "kb", []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQueryFailureIsTyped(t *testing.T) {
	b := newFakeBackend()
	b.indexes["kb"] = store.IndexInfo{Exists: true, Ready: true, Dimension: 3}
	b.queryErr = errors.New("connection refused")
	g := newGateway(b)

	_, err := g.Query(context.Background(), "kb", []float32{1, 0, 0}, 4)

	var rerr *store.RetrievalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "kb", rerr.Index)
	assert.ErrorIs(t, err, b.queryErr)

	assert.Empty(t, g.QueryOrEmpty(context.Background(), "kb", []float32{1, 0, 0}, 4))
}

func TestQueryDescribeFailureIsRetrievalError(t *testing.T) {
	b := newFakeBackend()
	b.describeErr = errors.New("timeout")
	g := newGateway(b)

	_, err := g.Query(context.Background(), "kb", []float32{1, 0, 0}, 4)

	var rerr *store.RetrievalError
	assert.ErrorAs(t, err, &rerr)
}

func TestMatchHasScore(t *testing.T) {
	assert.True(t, models.Match{Score: 0}.HasScore())
	assert.False(t, models.Match{Score: math.NaN()}.HasScore())
}
