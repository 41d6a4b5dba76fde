// Package contentcache keeps a read-mostly snapshot of the content index
// and folder listings. Readers may see a list up to TTL seconds stale;
// at most one refresh runs at a time, and write operations force a
// synchronous refresh so a client immediately sees its own change.
package contentcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/metadata"
	"github.com/parchmentlabs/parchment/internal/metrics"
	"github.com/parchmentlabs/parchment/internal/models"
	"github.com/parchmentlabs/parchment/internal/storage"
)

// RootFolder is always present and cannot be renamed or removed.
const RootFolder = "/"

const emptyFoldersKey = "folders/empty_folders.json"

var (
	ErrRootFolder     = errors.New("the root folder cannot be modified")
	ErrFolderExists   = errors.New("folder already exists")
	ErrFolderNotFound = errors.New("folder not found")
)

// Service owns the cached index and folder state.
type Service struct {
	meta   metadata.Store
	store  storage.Storage
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	indexes  []*models.ContentIndex
	empty    []string // folders with no content, persisted separately
	loadedAt time.Time
	loading  bool
}

func New(meta metadata.Store, store storage.Storage, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Service{meta: meta, store: store, ttl: ttl, logger: logger}
}

// Indexes returns the cached content indexes, refreshing if the snapshot
// expired and no other refresh is running. Concurrent readers during a
// refresh get the stale snapshot instead of blocking.
func (s *Service) Indexes(ctx context.Context) ([]*models.ContentIndex, error) {
	s.mu.Lock()
	expired := time.Since(s.loadedAt) > s.ttl
	if !expired || s.loading {
		if expired {
			metrics.CacheStaleReads.WithLabelValues("index").Inc()
		}
		out := s.indexes
		s.mu.Unlock()
		return out, nil
	}
	s.loading = true
	s.mu.Unlock()

	return s.refresh(ctx, "ttl")
}

// Refresh reloads the snapshot immediately. Writers call this before
// returning success so follow-up reads see their write.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	_, err := s.refresh(ctx, "write")
	return err
}

// refresh loads from the metadata store. The caller must have set the
// loading flag; refresh clears it.
func (s *Service) refresh(ctx context.Context, trigger string) ([]*models.ContentIndex, error) {
	indexes, err := s.meta.List(ctx)
	var empty []string
	if err == nil {
		empty, err = s.loadEmptyFolders(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		// keep serving the previous snapshot
		s.logger.Error("Content cache refresh failed", zap.Error(err))
		return s.indexes, err
	}
	s.indexes = indexes
	s.empty = empty
	s.loadedAt = time.Now()
	metrics.CacheRefreshes.WithLabelValues("index", trigger).Inc()
	metrics.CachedIndexes.Set(float64(len(indexes)))
	return indexes, nil
}

func (s *Service) loadEmptyFolders(ctx context.Context) ([]string, error) {
	data, err := s.store.Get(ctx, emptyFoldersKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load empty folders: %w", err)
	}
	var folders []string
	if err := json.Unmarshal(data, &folders); err != nil {
		return nil, fmt.Errorf("decode empty folders: %w", err)
	}
	return folders, nil
}

func (s *Service) saveEmptyFolders(ctx context.Context, folders []string) error {
	data, err := json.Marshal(folders)
	if err != nil {
		return fmt.Errorf("encode empty folders: %w", err)
	}
	if err := s.store.Put(ctx, emptyFoldersKey, data); err != nil {
		return fmt.Errorf("save empty folders: %w", err)
	}
	return nil
}

// Summaries returns trimmed listing entries: top 3 themes, top 5 keywords.
func (s *Service) Summaries(ctx context.Context) ([]models.IndexSummary, error) {
	indexes, err := s.Indexes(ctx)
	if err != nil && indexes == nil {
		return nil, err
	}
	out := make([]models.IndexSummary, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, models.IndexSummary{
			ID:       idx.ID,
			Type:     idx.Type,
			Title:    idx.Title,
			Folder:   normalizeFolder(idx.Folder),
			Themes:   headN(idx.Auto.Themes, 3),
			Keywords: headN(idx.Auto.Keywords, 5),
		})
	}
	return out, nil
}

// Folders returns every known folder: the root, folders holding content,
// intermediate ancestors, and explicitly created empty folders.
func (s *Service) Folders(ctx context.Context) ([]string, error) {
	indexes, err := s.Indexes(ctx)
	if err != nil && indexes == nil {
		return nil, err
	}
	s.mu.Lock()
	empty := append([]string(nil), s.empty...)
	s.mu.Unlock()

	set := map[string]bool{RootFolder: true}
	add := func(folder string) {
		folder = normalizeFolder(folder)
		for folder != RootFolder {
			set[folder] = true
			folder = parentFolder(folder)
		}
	}
	for _, idx := range indexes {
		add(idx.Folder)
	}
	for _, f := range empty {
		add(f)
	}

	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// CreateFolder registers a new empty folder.
func (s *Service) CreateFolder(ctx context.Context, folder string) error {
	folder = normalizeFolder(folder)
	if folder == RootFolder {
		return ErrRootFolder
	}
	existing, err := s.Folders(ctx)
	if err != nil {
		return err
	}
	for _, f := range existing {
		if f == folder {
			return fmt.Errorf("%w: %s", ErrFolderExists, folder)
		}
	}

	s.mu.Lock()
	empty := append(append([]string(nil), s.empty...), folder)
	s.mu.Unlock()
	if err := s.saveEmptyFolders(ctx, empty); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// RenameFolder moves a folder and everything under it to a new path,
// rewriting the metadata of affected items.
func (s *Service) RenameFolder(ctx context.Context, from, to string) error {
	from, to = normalizeFolder(from), normalizeFolder(to)
	if from == RootFolder {
		return ErrRootFolder
	}
	indexes, err := s.Indexes(ctx)
	if err != nil && indexes == nil {
		return err
	}

	found := false
	for _, idx := range indexes {
		folder := normalizeFolder(idx.Folder)
		if folder != from && !strings.HasPrefix(folder, from+"/") {
			continue
		}
		found = true
		idx.Folder = normalizeFolder(to + strings.TrimPrefix(folder, from))
		if err := s.meta.Put(ctx, idx); err != nil {
			return fmt.Errorf("move item %s: %w", idx.ID, err)
		}
	}

	s.mu.Lock()
	var empty []string
	for _, f := range s.empty {
		switch {
		case f == from:
			found = true
			empty = append(empty, to)
		case strings.HasPrefix(f, from+"/"):
			found = true
			empty = append(empty, normalizeFolder(to+strings.TrimPrefix(f, from)))
		default:
			empty = append(empty, f)
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrFolderNotFound, from)
	}
	if err := s.saveEmptyFolders(ctx, empty); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// DeleteFolder removes a folder; its contents move to the parent folder.
func (s *Service) DeleteFolder(ctx context.Context, folder string) error {
	folder = normalizeFolder(folder)
	if folder == RootFolder {
		return ErrRootFolder
	}
	parent := parentFolder(folder)

	indexes, err := s.Indexes(ctx)
	if err != nil && indexes == nil {
		return err
	}

	found := false
	for _, idx := range indexes {
		f := normalizeFolder(idx.Folder)
		if f != folder && !strings.HasPrefix(f, folder+"/") {
			continue
		}
		found = true
		idx.Folder = parent
		if err := s.meta.Put(ctx, idx); err != nil {
			return fmt.Errorf("move item %s to parent: %w", idx.ID, err)
		}
	}

	s.mu.Lock()
	var empty []string
	for _, f := range s.empty {
		if f == folder || strings.HasPrefix(f, folder+"/") {
			found = true
			continue
		}
		empty = append(empty, f)
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrFolderNotFound, folder)
	}
	if err := s.saveEmptyFolders(ctx, empty); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// MoveItem puts one content index into a different folder.
func (s *Service) MoveItem(ctx context.Context, indexID, folder string) error {
	idx, err := s.meta.Get(ctx, indexID)
	if err != nil {
		return err
	}
	idx.Folder = normalizeFolder(folder)
	if err := s.meta.Put(ctx, idx); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func normalizeFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return RootFolder
	}
	if !strings.HasPrefix(folder, "/") {
		folder = "/" + folder
	}
	cleaned := path.Clean(folder)
	return cleaned
}

func parentFolder(folder string) string {
	p := path.Dir(folder)
	if p == "." || p == "" {
		return RootFolder
	}
	return p
}

func headN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
