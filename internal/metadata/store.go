// Package metadata persists content index records as JSON blobs and
// derives auto-metadata tags for newly ingested content.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/models"
	"github.com/parchmentlabs/parchment/internal/storage"
)

// ErrNotFound is returned when an index has no metadata record.
var ErrNotFound = errors.New("metadata not found")

const blobPrefix = "meta/"

// Store is the metadata lookup surface used by ranking and the caches.
type Store interface {
	Get(ctx context.Context, indexID string) (*models.ContentIndex, error)
	Put(ctx context.Context, index *models.ContentIndex) error
	Delete(ctx context.Context, indexID string) error
	List(ctx context.Context) ([]*models.ContentIndex, error)
}

// BlobStore implements Store on the blob storage layer, one JSON blob per
// content index.
type BlobStore struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewBlobStore(store storage.Storage, logger *zap.Logger) *BlobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{store: store, logger: logger}
}

func blobKey(indexID string) string { return blobPrefix + indexID + ".json" }

func (s *BlobStore) Get(ctx context.Context, indexID string) (*models.ContentIndex, error) {
	data, err := s.store.Get(ctx, blobKey(indexID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, indexID)
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata %s: %w", indexID, err)
	}
	var idx models.ContentIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", indexID, err)
	}
	return &idx, nil
}

func (s *BlobStore) Put(ctx context.Context, index *models.ContentIndex) error {
	if index.ID == "" {
		return fmt.Errorf("metadata record needs an id")
	}
	now := time.Now().UTC()
	if index.CreatedAt.IsZero() {
		index.CreatedAt = now
	}
	index.UpdatedAt = now

	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", index.ID, err)
	}
	if err := s.store.Put(ctx, blobKey(index.ID), data); err != nil {
		return fmt.Errorf("put metadata %s: %w", index.ID, err)
	}
	return nil
}

func (s *BlobStore) Delete(ctx context.Context, indexID string) error {
	if _, err := s.store.Delete(ctx, blobKey(indexID)); err != nil {
		return fmt.Errorf("delete metadata %s: %w", indexID, err)
	}
	return nil
}

// List loads every metadata record. A record that fails to decode is
// skipped with a warning so one corrupt blob never hides the rest.
func (s *BlobStore) List(ctx context.Context) ([]*models.ContentIndex, error) {
	infos, err := s.store.List(ctx, blobPrefix)
	if err != nil {
		return nil, fmt.Errorf("list metadata blobs: %w", err)
	}
	out := make([]*models.ContentIndex, 0, len(infos))
	for _, info := range infos {
		data, err := s.store.Get(ctx, info.Key)
		if err != nil {
			s.logger.Warn("Skipping unreadable metadata blob",
				zap.String("key", info.Key), zap.Error(err))
			continue
		}
		var idx models.ContentIndex
		if err := json.Unmarshal(data, &idx); err != nil {
			s.logger.Warn("Skipping undecodable metadata blob",
				zap.String("key", info.Key), zap.Error(err))
			continue
		}
		out = append(out, &idx)
	}
	return out, nil
}
