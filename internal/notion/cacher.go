package notion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/models"
)

// Fetcher is the Notion read surface the cacher needs.
type Fetcher interface {
	PageTitle(ctx context.Context, pageID string) (string, error)
	PageText(ctx context.Context, pageID string) (string, error)
	DatabaseTitle(ctx context.Context, databaseID string) (string, error)
	DatabaseText(ctx context.Context, databaseID string) (string, error)
}

// Ingestor runs the ingestion pipeline under a chosen index ID.
type Ingestor interface {
	IngestTextAs(ctx context.Context, indexID, title, folder string, contentType models.ContentType, text string) (*models.ContentIndex, error)
}

// Cacher snapshots Notion pages and databases into content indexes.
// Every call produces a new index under a fresh ID, so caching the same
// page twice yields two independent snapshots rather than overwriting
// the first.
type Cacher struct {
	client Fetcher
	ingest Ingestor
	logger *zap.Logger
}

func NewCacher(client Fetcher, ingest Ingestor, logger *zap.Logger) *Cacher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cacher{client: client, ingest: ingest, logger: logger}
}

// CachePage fetches a page and ingests its text.
func (c *Cacher) CachePage(ctx context.Context, pageID, folder string) (*models.ContentIndex, error) {
	title, err := c.client.PageTitle(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("fetch page title: %w", err)
	}
	if title == "" {
		title = "Untitled page " + pageID
	}
	text, err := c.client.PageText(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("fetch page text: %w", err)
	}

	indexID := uuid.New().String()
	idx, err := c.ingest.IngestTextAs(ctx, indexID, title, folder, models.ContentTypePage, text)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Cached page",
		zap.String("page_id", pageID),
		zap.String("index_id", indexID),
		zap.String("title", title))
	return idx, nil
}

// CacheDatabase fetches a database's rows and ingests them.
func (c *Cacher) CacheDatabase(ctx context.Context, databaseID, folder string) (*models.ContentIndex, error) {
	title, err := c.client.DatabaseTitle(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("fetch database title: %w", err)
	}
	if title == "" {
		title = "Untitled database " + databaseID
	}
	text, err := c.client.DatabaseText(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("fetch database rows: %w", err)
	}

	indexID := uuid.New().String()
	idx, err := c.ingest.IngestTextAs(ctx, indexID, title, folder, models.ContentTypeDatabase, text)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Cached database",
		zap.String("database_id", databaseID),
		zap.String("index_id", indexID),
		zap.String("title", title))
	return idx, nil
}
