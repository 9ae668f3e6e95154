package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/kv"
)

// fakeEmbedder returns fixed vectors per text and a default for unknown text
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	empty   bool
	calls   int
}

func (f *fakeEmbedder) Embeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return [][]float32{}, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, []float32{0, 0, 1})
	}
	return out, nil
}

func newTestStore(t *testing.T, embedder Embedder, pageSize int64) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewStore(kv.NewRedisStoreFromClient(client), embedder, Config{PageSize: pageSize}, zap.NewNop())
	return store, mr
}

func TestStore_RoundTrip(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"the quick brown fox": {0.2, 0.9, 0.1},
	}}
	store, mr := newTestStore(t, embedder, 0)
	ctx := context.Background()

	require.NoError(t, store.IndexDocument(ctx, "d1", "the quick brown fox", map[string]any{}))
	assert.True(t, mr.Exists("rag:doc:d1"))

	texts := store.RetrieveRelevant(ctx, "global", "the quick brown fox", 1)
	assert.Equal(t, []string{"the quick brown fox"}, texts)

	matches, err := store.Search(ctx, "global", "the quick brown fox", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d1", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestStore_OrderingAndTopK(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
		"exact": {1, 0, 0},
		"close": {0.9, 0.1, 0},
		"far":   {0, 1, 0},
		"mid":   {0.5, 0.5, 0},
	}}
	// small pages force several scan iterations
	store, _ := newTestStore(t, embedder, 1)
	ctx := context.Background()

	for _, text := range []string{"far", "mid", "exact", "close"} {
		require.NoError(t, store.IndexDocument(ctx, "id-"+text, text, nil))
	}

	texts, err := store.Retrieve(ctx, "u1", "query", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "close", "mid"}, texts)

	all, err := store.Retrieve(ctx, "u1", "query", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	defaulted, err := store.Retrieve(ctx, "u1", "query", 0)
	require.NoError(t, err)
	assert.Len(t, defaulted, DefaultTopK)
}

func TestStore_EmptyStore(t *testing.T) {
	store, _ := newTestStore(t, &fakeEmbedder{}, 0)

	texts := store.RetrieveRelevant(context.Background(), "global", "anything", 3)
	assert.NotNil(t, texts)
	assert.Empty(t, texts)
}

func TestStore_BadRecordIsSkipped(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"good":  {1, 0, 0},
		"query": {1, 0, 0},
	}}
	store, mr := newTestStore(t, embedder, 0)
	ctx := context.Background()

	require.NoError(t, store.IndexDocument(ctx, "good", "good", nil))
	mr.HSet("rag:doc:broken", "vector", "not-json", "text", "broken")
	mr.HSet("rag:doc:novector", "text", "orphan")
	mr.HSet("rag:doc:short", "vector", "[1]", "text", "short")

	texts, err := store.Retrieve(ctx, "global", "query", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, texts)
}

func TestStore_EmbeddingFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("retrieval degrades to empty", func(t *testing.T) {
		store, _ := newTestStore(t, &fakeEmbedder{err: errors.New("provider down")}, 0)

		texts := store.RetrieveRelevant(ctx, "global", "query", 3)
		assert.Equal(t, []string{}, texts)

		_, err := store.Retrieve(ctx, "global", "query", 3)
		assert.True(t, IsEmbeddingError(err))
	})

	t.Run("indexing fails loudly", func(t *testing.T) {
		store, mr := newTestStore(t, &fakeEmbedder{empty: true}, 0)

		err := store.IndexDocument(ctx, "d1", "text", nil)
		require.Error(t, err)
		assert.Equal(t, "embedding failed", err.Error())
		assert.False(t, mr.Exists("rag:doc:d1"))
	})

	t.Run("indexing requires an id", func(t *testing.T) {
		embedder := &fakeEmbedder{}
		store, _ := newTestStore(t, embedder, 0)

		assert.Error(t, store.IndexDocument(ctx, " ", "text", nil))
		assert.Zero(t, embedder.calls)
	})
}

// repeatingScan returns every scanned key twice, as SCAN may during a rehash
type repeatingScan struct {
	kv.Store
}

func (r repeatingScan) Scan(ctx context.Context, cursor uint64, pattern string, pageSize int64) (uint64, []string, error) {
	next, keys, err := r.Store.Scan(ctx, cursor, pattern, pageSize)
	return next, append(keys, keys...), err
}

func TestStore_DuplicateScanKeysCountOnce(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
		"exact": {1, 0, 0},
		"close": {0.9, 0.1, 0},
	}}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewStore(repeatingScan{kv.NewRedisStoreFromClient(client)}, embedder, Config{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.IndexDocument(ctx, "a", "exact", nil))
	require.NoError(t, store.IndexDocument(ctx, "b", "close", nil))

	texts, err := store.Retrieve(ctx, "global", "query", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "close"}, texts)
}

func TestStore_ScanFailureDegrades(t *testing.T) {
	store, mr := newTestStore(t, &fakeEmbedder{}, 0)
	mr.Close()

	texts := store.RetrieveRelevant(context.Background(), "global", "query", 3)
	assert.Empty(t, texts)
}

func TestStore_ReindexOverwrites(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"v1":    {1, 0, 0},
		"v2":    {0, 1, 0},
		"query": {0, 1, 0},
	}}
	store, _ := newTestStore(t, embedder, 0)
	ctx := context.Background()

	require.NoError(t, store.IndexDocument(ctx, "d1", "v1", map[string]any{"rev": 1}))
	require.NoError(t, store.IndexDocument(ctx, "d1", "v2", map[string]any{"rev": 2}))

	matches, err := store.Search(ctx, "global", "query", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v2", matches[0].Text)
	assert.Equal(t, float64(2), matches[0].Metadata["rev"])
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, expected: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, expected: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, expected: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosine(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 1e-6, fmt.Sprintf("cosine(%v, %v)", tt.a, tt.b))
		})
	}
}
