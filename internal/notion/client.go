// Package notion fetches pages and databases from the Notion API and
// flattens them to plain text for ingestion.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/circuitbreaker"
	"github.com/parchmentlabs/parchment/internal/config"
	"github.com/parchmentlabs/parchment/internal/tracing"
)

const (
	apiVersion      = "2022-06-28"
	pageSize        = 100
	maxResponseSize = 10 << 20
)

// Client is a minimal Notion REST client covering block, page, and
// database reads.
type Client struct {
	baseURL string
	token   string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

func NewClient(cfg config.NotionConfig, settings circuitbreaker.Settings, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com/v1"
	}
	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		http:    circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: timeout}, "notion", settings, logger),
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notion request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read notion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("notion %s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 200))
	}
	return data, nil
}

// PageTitle returns the title of a page.
func (c *Client) PageTitle(ctx context.Context, pageID string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/pages/"+pageID, nil)
	if err != nil {
		return "", err
	}
	var page struct {
		Properties map[string]struct {
			Type  string     `json:"type"`
			Title []richText `json:"title"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return "", fmt.Errorf("decode page %s: %w", pageID, err)
	}
	for _, prop := range page.Properties {
		if prop.Type == "title" {
			return flattenRichText(prop.Title), nil
		}
	}
	return "", nil
}

// PageText fetches all blocks of a page, recursing into children, and
// flattens them to plain text.
func (c *Client) PageText(ctx context.Context, pageID string) (string, error) {
	var b strings.Builder
	if err := c.appendBlockChildren(ctx, pageID, &b, 0); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

func (c *Client) appendBlockChildren(ctx context.Context, blockID string, b *strings.Builder, depth int) error {
	// Notion nests blocks arbitrarily; 8 levels covers real documents
	if depth > 8 {
		return nil
	}
	cursor := ""
	for {
		path := fmt.Sprintf("/blocks/%s/children?page_size=%d", blockID, pageSize)
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		data, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}

		var page struct {
			Results    []block `json:"results"`
			HasMore    bool    `json:"has_more"`
			NextCursor string  `json:"next_cursor"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return fmt.Errorf("decode blocks of %s: %w", blockID, err)
		}

		for _, blk := range page.Results {
			if text := blk.text(); text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
			if blk.HasChildren {
				if err := c.appendBlockChildren(ctx, blk.ID, b, depth+1); err != nil {
					return err
				}
			}
		}

		if !page.HasMore || page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

// DatabaseTitle returns the title of a database.
func (c *Client) DatabaseTitle(ctx context.Context, databaseID string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/databases/"+databaseID, nil)
	if err != nil {
		return "", err
	}
	var db struct {
		Title []richText `json:"title"`
	}
	if err := json.Unmarshal(data, &db); err != nil {
		return "", fmt.Errorf("decode database %s: %w", databaseID, err)
	}
	return flattenRichText(db.Title), nil
}

// DatabaseText queries all rows of a database and flattens every
// property value to text, one line per row.
func (c *Client) DatabaseText(ctx context.Context, databaseID string) (string, error) {
	var b strings.Builder
	cursor := ""
	for {
		body := map[string]any{"page_size": pageSize}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		data, err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", body)
		if err != nil {
			return "", err
		}

		var page struct {
			Results []struct {
				Properties map[string]json.RawMessage `json:"properties"`
			} `json:"results"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return "", fmt.Errorf("decode database query %s: %w", databaseID, err)
		}

		for _, row := range page.Results {
			parts := make([]string, 0, len(row.Properties))
			for name, raw := range row.Properties {
				if v := flattenProperty(raw); v != "" {
					parts = append(parts, name+": "+v)
				}
			}
			if len(parts) > 0 {
				b.WriteString(strings.Join(parts, " | "))
				b.WriteString("\n")
			}
		}

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return strings.TrimSpace(b.String()), nil
}

func truncate(data []byte, n int) string {
	s := string(data)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
