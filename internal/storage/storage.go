// Package storage provides the blob store used for metadata records and
// other small JSON documents. Production runs on Redis; tests and local
// development can use the in-memory store.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("blob not found")

// BlobInfo describes one stored blob.
type BlobInfo struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
}

// Storage is a minimal key-addressed blob store.
type Storage interface {
	// List returns info for every blob whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	// Get returns the blob's contents, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores data under key, replacing any existing blob.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes the blob. It reports whether a blob existed.
	Delete(ctx context.Context, key string) (bool, error)
}
