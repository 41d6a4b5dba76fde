// Package websearch is the last-resort research tool: it is only called
// after index retrieval comes back empty.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/circuitbreaker"
	"github.com/parchmentlabs/parchment/internal/config"
	"github.com/parchmentlabs/parchment/internal/tracing"
)

// Searcher returns a text digest of web results for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Client implements Searcher against a Tavily-style search API.
type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
	http       *circuitbreaker.HTTPWrapper
	logger     *zap.Logger
}

func NewClient(cfg config.WebSearchConfig, breaker config.BreakerConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		http: circuitbreaker.NewHTTPWrapper(
			&http.Client{Timeout: cfg.Timeout},
			"websearch",
			circuitbreaker.FromConfig(breaker),
			logger,
		),
		logger: logger,
	}
}

type searchRequest struct {
	Query         string `json:"query"`
	APIKey        string `json:"api_key,omitempty"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search returns a flattened text digest of the top results. An empty
// result set is an error so callers can surface "no results" uniformly.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(searchRequest{
		Query:         query,
		APIKey:        c.apiKey,
		MaxResults:    c.maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal search request: %w", err)
	}

	url := c.baseURL + "/search"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("web search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	var b strings.Builder
	if parsed.Answer != "" {
		b.WriteString(parsed.Answer)
		b.WriteString("\n\n")
	}
	for i, r := range parsed.Results {
		if i >= c.maxResults {
			break
		}
		fmt.Fprintf(&b, "[%s](%s)\n%s\n\n", r.Title, r.URL, r.Content)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("web search returned no results for %q", query)
	}
	return out, nil
}
