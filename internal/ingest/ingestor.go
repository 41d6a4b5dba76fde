// Package ingest turns uploaded documents into searchable content
// indexes: parse, chunk, embed, upsert vectors, tag metadata, refresh
// the content cache.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/embeddings"
	"github.com/parchmentlabs/parchment/internal/metadata"
	"github.com/parchmentlabs/parchment/internal/metrics"
	"github.com/parchmentlabs/parchment/internal/models"
	"github.com/parchmentlabs/parchment/internal/vectordb"
)

// VectorWriter is the vector store surface the ingestor needs.
type VectorWriter interface {
	EnsureCollection(ctx context.Context, indexID string) error
	Upsert(ctx context.Context, indexID string, points []vectordb.UpsertItem) error
	DeleteCollection(ctx context.Context, indexID string) error
}

// AutoTagger derives metadata tags for new content.
type AutoTagger interface {
	Tag(ctx context.Context, title, text string) models.AutoMetadata
}

// Refresher forces the content cache to reload after a write.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Ingestor runs the ingestion pipeline.
type Ingestor struct {
	chunker  *embeddings.Chunker
	embedder embeddings.Embedder
	vectors  VectorWriter
	tagger   AutoTagger
	meta     metadata.Store
	cache    Refresher
	pdf      PDFExtractor
	logger   *zap.Logger
}

func New(
	chunker *embeddings.Chunker,
	embedder embeddings.Embedder,
	vectors VectorWriter,
	tagger AutoTagger,
	meta metadata.Store,
	cache Refresher,
	pdf PDFExtractor,
	logger *zap.Logger,
) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		tagger:   tagger,
		meta:     meta,
		cache:    cache,
		pdf:      pdf,
		logger:   logger,
	}
}

// IngestFile ingests an uploaded file, deriving type and title from the
// file name.
func (in *Ingestor) IngestFile(ctx context.Context, filename, folder string, data []byte) (*models.ContentIndex, error) {
	contentType, err := typeForFilename(filename)
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues("unknown", "rejected").Inc()
		return nil, err
	}

	var text string
	switch contentType {
	case models.ContentTypePDF:
		if in.pdf == nil {
			metrics.DocumentsIngested.WithLabelValues(string(contentType), "rejected").Inc()
			return nil, fmt.Errorf("no PDF extractor configured")
		}
		text, err = in.pdf.Extract(data)
		if err != nil {
			metrics.DocumentsIngested.WithLabelValues(string(contentType), "failed").Inc()
			return nil, fmt.Errorf("extract pdf %s: %w", filename, err)
		}
	case models.ContentTypeMarkdown:
		text = stripMarkdown(string(data))
	default:
		text = string(data)
	}

	return in.IngestText(ctx, titleForFilename(filename), folder, contentType, text)
}

// IngestText ingests already-extracted text under a fresh index ID.
func (in *Ingestor) IngestText(ctx context.Context, title, folder string, contentType models.ContentType, text string) (*models.ContentIndex, error) {
	return in.IngestTextAs(ctx, uuid.New().String(), title, folder, contentType, text)
}

// IngestTextAs ingests text under a caller-chosen index ID. The full
// pipeline runs in order: collection, chunks, embeddings, vectors, tags,
// metadata, cache refresh.
func (in *Ingestor) IngestTextAs(ctx context.Context, indexID, title, folder string, contentType models.ContentType, text string) (*models.ContentIndex, error) {
	if strings.TrimSpace(text) == "" {
		metrics.DocumentsIngested.WithLabelValues(string(contentType), "rejected").Inc()
		return nil, fmt.Errorf("document %q has no extractable text", title)
	}

	chunks := in.chunker.Split(text)
	if len(chunks) == 0 {
		metrics.DocumentsIngested.WithLabelValues(string(contentType), "rejected").Inc()
		return nil, fmt.Errorf("document %q produced no chunks", title)
	}

	if err := in.vectors.EnsureCollection(ctx, indexID); err != nil {
		metrics.DocumentsIngested.WithLabelValues(string(contentType), "failed").Inc()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues(string(contentType), "failed").Inc()
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		metrics.DocumentsIngested.WithLabelValues(string(contentType), "failed").Inc()
		return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	points := make([]vectordb.UpsertItem, len(chunks))
	for i, c := range chunks {
		points[i] = vectordb.UpsertItem{
			ID:     uuid.New().String(),
			Vector: vectors[i],
			Payload: map[string]any{
				"text":        c.Text,
				"chunk_index": c.Index,
				"chunk_total": c.Total,
				"index_id":    indexID,
				"title":       title,
			},
		}
	}
	if err := in.vectors.Upsert(ctx, indexID, points); err != nil {
		metrics.DocumentsIngested.WithLabelValues(string(contentType), "failed").Inc()
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}
	metrics.ChunksEmbedded.Add(float64(len(chunks)))

	// tagging is best effort; the tagger degrades to empty metadata
	auto := in.tagger.Tag(ctx, title, text)

	index := &models.ContentIndex{
		ID:     indexID,
		Type:   contentType,
		Title:  title,
		Folder: folder,
		Auto:   auto,
	}
	if err := in.meta.Put(ctx, index); err != nil {
		metrics.DocumentsIngested.WithLabelValues(string(contentType), "failed").Inc()
		return nil, fmt.Errorf("store metadata: %w", err)
	}

	if err := in.cache.Refresh(ctx); err != nil {
		// the index is fully stored; stale listings fix themselves on TTL
		in.logger.Warn("Content cache refresh after ingest failed", zap.Error(err))
	}

	metrics.DocumentsIngested.WithLabelValues(string(contentType), "ok").Inc()
	in.logger.Info("Ingested document",
		zap.String("index_id", indexID),
		zap.String("title", title),
		zap.String("type", string(contentType)),
		zap.Int("chunks", len(chunks)))
	return index, nil
}

// Delete removes an index entirely: vectors, metadata, and the cached
// listing entry.
func (in *Ingestor) Delete(ctx context.Context, indexID string) error {
	if err := in.vectors.DeleteCollection(ctx, indexID); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := in.meta.Delete(ctx, indexID); err != nil && !errors.Is(err, metadata.ErrNotFound) {
		return fmt.Errorf("delete metadata: %w", err)
	}
	if err := in.cache.Refresh(ctx); err != nil {
		in.logger.Warn("Content cache refresh after delete failed", zap.Error(err))
	}
	in.logger.Info("Deleted index", zap.String("index_id", indexID))
	return nil
}
