package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parchmentlabs/parchment/internal/config"
)

func newClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.VectorConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, TopK: 5, VectorSize: 3}
	return NewClient(cfg, config.BreakerConfig{}, zaptest.NewLogger(t))
}

func TestQueryParsesScoredPoints(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/content_doc1/points/query", r.URL.Path)
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 5, req.Limit)
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"points": []map[string]any{
					{"id": "p1", "score": 0.91, "payload": map[string]any{"text": "first passage"}},
					{"id": "p2", "score": 0.45, "payload": map[string]any{"text": "second passage"}},
				},
			},
			"status": "ok",
		})
	}))

	chunks, err := c.Query(context.Background(), "doc1", []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first passage", chunks[0].Text)
	assert.InDelta(t, 0.91, chunks[0].Score, 1e-9)
	assert.True(t, chunks[0].Scored)
}

func TestQueryMissingCollection(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Query(context.Background(), "ghost", []float32{1}, 3)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestQueryLegacyFallback(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/content_doc1/points/query":
			// simulate an older server without /points/query
			w.WriteHeader(http.StatusBadRequest)
		case "/collections/content_doc1/points/search":
			json.NewEncoder(w).Encode(map[string]any{
				"result": []map[string]any{
					{"id": "p1", "score": 0.7, "payload": map[string]any{"text": "legacy hit"}},
				},
				"status": "ok",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	chunks, err := c.Query(context.Background(), "doc1", []float32{1}, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "legacy hit", chunks[0].Text)
}

func TestQueryUnscoredPoint(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"points": []map[string]any{
					{"id": "p1", "payload": map[string]any{"text": "no score attached"}},
				},
			},
		})
	}))

	chunks, err := c.Query(context.Background(), "doc1", []float32{1}, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.False(t, chunks[0].Scored)
}

func TestEnsureCollectionToleratesConflict(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusConflict)
	}))

	assert.NoError(t, c.EnsureCollection(context.Background(), "doc1"))
}

func TestDeleteCollectionIdempotent(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	assert.NoError(t, c.DeleteCollection(context.Background(), "gone"))
}

func TestUpsert(t *testing.T) {
	var got struct {
		Points []UpsertItem `json:"points"`
	}
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/content_doc1/points", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))

	err := c.Upsert(context.Background(), "doc1", []UpsertItem{
		{ID: "c1", Vector: []float32{1, 2, 3}, Payload: map[string]any{"text": "chunk"}},
	})
	require.NoError(t, err)
	require.Len(t, got.Points, 1)
	assert.Equal(t, "c1", got.Points[0].ID)
}
