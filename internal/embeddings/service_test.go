package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parchmentlabs/parchment/internal/config"
)

func newTestService(t *testing.T, calls *atomic.Int32) *Service {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{Dimensions: 3}
		for range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float64{0.1, 0.2, 0.3})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	cfg := config.EmbeddingsConfig{
		BaseURL:    srv.URL,
		Model:      "test-embed",
		Timeout:    2 * time.Second,
		CacheTTL:   time.Minute,
		MaxLRUSize: 16,
	}
	return NewService(cfg, config.BreakerConfig{}, nil, zaptest.NewLogger(t))
}

func TestEmbedCachesResult(t *testing.T) {
	var calls atomic.Int32
	s := newTestService(t, &calls)
	ctx := context.Background()

	v1, err := s.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v1)
	assert.Equal(t, int32(1), calls.Load())

	v2, err := s.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	// second lookup served from the LRU
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatchOnlyFetchesMisses(t *testing.T) {
	var calls atomic.Int32
	s := newTestService(t, &calls)
	ctx := context.Background()

	_, err := s.Embed(ctx, "cached")
	require.NoError(t, err)

	out, err := s.EmbedBatch(ctx, []string{"cached", "fresh"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedBatchEmpty(t *testing.T) {
	var calls atomic.Int32
	s := newTestService(t, &calls)

	out, err := s.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int32(0), calls.Load())
}

func TestChunkerShortTextSingleChunk(t *testing.T) {
	c := NewChunker(100, 10)
	chunks := c.Split("a short document")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short document", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Total)
}

func TestChunkerOverlap(t *testing.T) {
	c := NewChunker(10, 2)
	words := make([]string, 25)
	for i := range words {
		words[i] = "w" + string(rune('a'+i))
	}
	chunks := c.Split(strings.Join(words, " "))
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, len(chunks), ch.Total)
		assert.LessOrEqual(t, c.CountTokens(ch.Text), 10)
	}
	// consecutive chunks share the overlap region
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, first[len(first)-2:], second[:2])
}

func TestChunkerEmptyText(t *testing.T) {
	c := NewChunker(10, 2)
	assert.Nil(t, c.Split("   "))
}

func TestLocalLRUEviction(t *testing.T) {
	lru := NewLocalLRU(2)
	lru.Set("a", []float32{1}, time.Minute)
	lru.Set("b", []float32{2}, time.Minute)
	lru.Set("c", []float32{3}, time.Minute)

	_, ok := lru.Get("a")
	assert.False(t, ok)
	_, ok = lru.Get("c")
	assert.True(t, ok)
}

func TestLocalLRUExpiry(t *testing.T) {
	lru := NewLocalLRU(4)
	lru.Set("k", []float32{1}, -time.Second)
	_, ok := lru.Get("k")
	assert.False(t, ok)
}
