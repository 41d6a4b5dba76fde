// Package vectordb is a minimal Qdrant HTTP client. Each content index
// gets its own collection, so dropping an index is a collection delete.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/circuitbreaker"
	"github.com/parchmentlabs/parchment/internal/config"
	"github.com/parchmentlabs/parchment/internal/tracing"
)

// ErrCollectionNotFound signals the index has no vector collection. The
// retrieval layer skips such indexes instead of failing the query.
var ErrCollectionNotFound = errors.New("vector collection not found")

// ScoredChunk is one retrieved passage with its similarity score.
type ScoredChunk struct {
	Text  string
	Score float64
	// Scored is false when the engine returned no usable score for the hit.
	Scored bool
}

// UpsertItem is a single point written to a collection.
type UpsertItem struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Client talks to Qdrant over HTTP.
type Client struct {
	cfg    config.VectorConfig
	base   string
	httpw  *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

func NewClient(cfg config.VectorConfig, breaker config.BreakerConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = 1536
	}
	return &Client{
		cfg:  cfg,
		base: cfg.BaseURL,
		httpw: circuitbreaker.NewHTTPWrapper(
			&http.Client{Timeout: cfg.Timeout},
			"qdrant",
			circuitbreaker.FromConfig(breaker),
			logger,
		),
		logger: logger,
	}
}

func collectionName(indexID string) string { return "content_" + indexID }

func (c *Client) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var rd *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", method, url, err)
		}
		rd = bytes.NewReader(buf)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}
	tracing.InjectTraceparent(ctx, req)
	return c.httpw.Do(req)
}

// EnsureCollection creates the collection for an index if it is missing.
func (c *Client) EnsureCollection(ctx context.Context, indexID string) error {
	name := collectionName(indexID)
	url := fmt.Sprintf("%s/collections/%s", c.base, name)
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPut, url)
	defer span.End()

	body := map[string]any{
		"vectors": map[string]any{"size": c.cfg.VectorSize, "distance": "Cosine"},
	}
	resp, err := c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	defer resp.Body.Close()
	// 409 means it already exists
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("create collection %s: status %d", name, resp.StatusCode)
	}
	return nil
}

// Upsert writes points into the index's collection.
func (c *Client) Upsert(ctx context.Context, indexID string, points []UpsertItem) error {
	if len(points) == 0 {
		return nil
	}
	name := collectionName(indexID)
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.base, name)
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPut, url)
	defer span.End()

	resp, err := c.do(ctx, http.MethodPut, url, map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, indexID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upsert into %s: status %d", name, resp.StatusCode)
	}
	return nil
}

type queryRequest struct {
	Query          []float32 `json:"query"`
	Limit          int       `json:"limit"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

type point struct {
	ID      any            `json:"id"`
	Score   *float64       `json:"score"`
	Payload map[string]any `json:"payload"`
}

type queryResponse struct {
	Result struct {
		Points []point `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

type searchResponse struct {
	Result []point `json:"result"`
	Status string  `json:"status"`
}

// Query runs a similarity search against one index's collection. The
// modern /points/query endpoint is preferred with a fallback to the
// legacy /points/search for older Qdrant versions.
func (c *Client) Query(ctx context.Context, indexID string, vector []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = c.cfg.TopK
	}
	name := collectionName(indexID)

	var thr *float64
	if c.cfg.Threshold > 0 {
		t := c.cfg.Threshold
		thr = &t
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.base, name)
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	resp, err := c.do(ctx, http.MethodPost, url, queryRequest{
		Query: vector, Limit: topK, ScoreThreshold: thr, WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var qr queryResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
			return nil, fmt.Errorf("decode query response: %w", err)
		}
		return toChunks(qr.Result.Points), nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, indexID)
	}

	// legacy fallback
	legacyURL := fmt.Sprintf("%s/collections/%s/points/search", c.base, name)
	legacy := map[string]any{"vector": vector, "limit": topK, "with_payload": true}
	if thr != nil {
		legacy["score_threshold"] = *thr
	}
	resp2, err := c.do(ctx, http.MethodPost, legacyURL, legacy)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, indexID)
	}
	if resp2.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %s: status %d", name, resp2.StatusCode)
	}
	var sr searchResponse
	if err := json.NewDecoder(resp2.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return toChunks(sr.Result), nil
}

// DeleteCollection removes an index's collection. Missing collections are
// not an error so deletes are idempotent.
func (c *Client) DeleteCollection(ctx context.Context, indexID string) error {
	name := collectionName(indexID)
	url := fmt.Sprintf("%s/collections/%s", c.base, name)
	resp, err := c.do(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete collection %s: status %d", name, resp.StatusCode)
	}
	return nil
}

// Ping verifies the Qdrant endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.base+"/collections", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qdrant status %d", resp.StatusCode)
	}
	return nil
}

func toChunks(points []point) []ScoredChunk {
	out := make([]ScoredChunk, 0, len(points))
	for _, p := range points {
		chunk := ScoredChunk{}
		if text, ok := p.Payload["text"].(string); ok {
			chunk.Text = text
		}
		if p.Score != nil {
			chunk.Score = *p.Score
			chunk.Scored = true
		}
		out = append(out, chunk)
	}
	return out
}
