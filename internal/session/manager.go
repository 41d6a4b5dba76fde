// Package session manages conversation sessions in Redis with a local
// read cache in front.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/circuitbreaker"
	"github.com/parchmentlabs/parchment/internal/config"
	"github.com/parchmentlabs/parchment/internal/metrics"
	"github.com/parchmentlabs/parchment/internal/models"
)

const keyPrefix = "session:"

// Manager stores sessions in Redis behind the circuit breaker wrapper and
// keeps a bounded local cache for the hot read path.
type Manager struct {
	client     *circuitbreaker.RedisWrapper
	logger     *zap.Logger
	ttl        time.Duration
	maxHistory int
	cacheSize  int

	mu          sync.RWMutex
	localCache  map[string]*Session
	cacheAccess map[string]time.Time
}

func NewManager(client *circuitbreaker.RedisWrapper, cfg config.SessionConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 100
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 10000
	}
	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         ttl,
		maxHistory:  maxHistory,
		cacheSize:   cacheSize,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
	}
}

// Create makes a new session with a generated ID.
func (m *Manager) Create(ctx context.Context, userID string, indexIDs []string) (*Session, error) {
	return m.CreateWithID(ctx, uuid.New().String(), userID, indexIDs)
}

// CreateWithID makes a session under a caller-chosen ID. An existing
// live session with that ID is returned as is, so retried requests do
// not wipe history.
func (m *Manager) CreateWithID(ctx context.Context, sessionID, userID string, indexIDs []string) (*Session, error) {
	if existing, err := m.Get(ctx, sessionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		IndexIDs:  indexIDs,
		History:   make([]models.Message, 0),
	}
	if err := m.save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	m.cachePut(s)
	metrics.SessionsCreated.Inc()
	m.logger.Info("Created session",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return s, nil
}

// Get returns a live session by ID, checking the local cache first.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	cached, ok := m.localCache[sessionID]
	m.mu.RUnlock()
	if ok {
		metrics.SessionCacheHits.WithLabelValues("local").Inc()
		if cached.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrExpired
		}
		m.mu.Lock()
		m.cacheAccess[sessionID] = time.Now()
		m.mu.Unlock()
		return cached, nil
	}

	data, err := m.client.Get(ctx, keyPrefix+sessionID)
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	metrics.SessionCacheHits.WithLabelValues("redis").Inc()

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if s.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrExpired
	}

	m.cachePut(&s)
	return &s, nil
}

// Update persists a modified session.
func (m *Manager) Update(ctx context.Context, s *Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	s.UpdatedAt = time.Now()
	if err := m.save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.cachePut(s)
	return nil
}

// Delete removes a session from Redis and the local cache.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, keyPrefix+sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.mu.Lock()
	delete(m.localCache, sessionID)
	delete(m.cacheAccess, sessionID)
	m.mu.Unlock()
	return nil
}

// AppendExchange records one prompt and its answer, trimming history to
// the configured window and updating the last result.
func (m *Manager) AppendExchange(ctx context.Context, sessionID, prompt, answer string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	now := time.Now()
	s.History = append(s.History,
		models.Message{Role: "user", Content: prompt, Timestamp: now},
		models.Message{Role: "assistant", Content: answer, Timestamp: now},
	)
	if len(s.History) > m.maxHistory {
		s.History = s.History[len(s.History)-m.maxHistory:]
	}
	s.LastResult = answer
	return m.Update(ctx, s)
}

// Extend pushes the session expiry out by duration from now.
func (m *Manager) Extend(ctx context.Context, sessionID string, duration time.Duration) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.ExpiresAt = time.Now().Add(duration)
	return m.Update(ctx, s)
}

// CleanupExpired scans Redis for sessions past their TTL and removes
// them. Redis usually expires keys itself; this sweeps sessions whose
// ExpiresAt was extended past the key TTL or left behind.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := m.client.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		data, err := m.client.Get(ctx, key)
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		if s.IsExpired() {
			if err := m.client.Del(ctx, key); err == nil {
				cleaned++
				m.mu.Lock()
				delete(m.localCache, s.ID)
				delete(m.cacheAccess, s.ID)
				m.mu.Unlock()
			}
		}
	}
	if cleaned > 0 {
		m.logger.Info("Cleaned up expired sessions", zap.Int("count", cleaned))
	}
	return cleaned, nil
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.client.Set(ctx, keyPrefix+s.ID, data, ttl)
}

func (m *Manager) cachePut(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localCache[s.ID] = s
	m.cacheAccess[s.ID] = time.Now()
	m.evictLocked()
}

// evictLocked drops the least recently used half when the cache
// overflows. Called with mu held.
func (m *Manager) evictLocked() {
	if len(m.localCache) <= m.cacheSize {
		return
	}
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(m.localCache))
	for id := range m.localCache {
		entries = append(entries, entry{id: id, at: m.cacheAccess[id]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	for i := 0; i < m.cacheSize/2 && i < len(entries); i++ {
		delete(m.localCache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
	}
}

// Redis exposes the wrapped client for health checks.
func (m *Manager) Redis() *circuitbreaker.RedisWrapper {
	return m.client
}
