package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parchmentlabs/parchment/internal/circuitbreaker"
	"github.com/parchmentlabs/parchment/internal/config"
)

func newTestManager(t *testing.T, cfg config.SessionConfig) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	wrapper := circuitbreaker.NewRedisWrapper(client, circuitbreaker.DefaultSettings(), zaptest.NewLogger(t))
	return NewManager(wrapper, cfg, zaptest.NewLogger(t))
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t, config.SessionConfig{})
	ctx := context.Background()

	s, err := m.Create(ctx, "user-1", []string{"idx-1"})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, []string{"idx-1"}, s.IndexIDs)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
}

func TestGetMissingSession(t *testing.T) {
	m := newTestManager(t, config.SessionConfig{})
	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSurvivesLocalCacheLoss(t *testing.T) {
	m := newTestManager(t, config.SessionConfig{})
	ctx := context.Background()

	s, err := m.Create(ctx, "user-1", nil)
	require.NoError(t, err)

	// drop the local cache to force the Redis path
	m.mu.Lock()
	m.localCache = make(map[string]*Session)
	m.cacheAccess = make(map[string]time.Time)
	m.mu.Unlock()

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestCreateWithIDReturnsExisting(t *testing.T) {
	m := newTestManager(t, config.SessionConfig{})
	ctx := context.Background()

	first, err := m.CreateWithID(ctx, "fixed-id", "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, m.AppendExchange(ctx, "fixed-id", "hi", "hello"))

	again, err := m.CreateWithID(ctx, "fixed-id", "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, again.History, 2, "retried create must not wipe history")
}

func TestAppendExchangeTrimsHistory(t *testing.T) {
	m := newTestManager(t, config.SessionConfig{MaxHistory: 4})
	ctx := context.Background()

	s, err := m.Create(ctx, "user-1", nil)
	require.NoError(t, err)

	require.NoError(t, m.AppendExchange(ctx, s.ID, "q1", "a1"))
	require.NoError(t, m.AppendExchange(ctx, s.ID, "q2", "a2"))
	require.NoError(t, m.AppendExchange(ctx, s.ID, "q3", "a3"))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 4)
	assert.Equal(t, "q2", got.History[0].Content)
	assert.Equal(t, "a3", got.LastResult)
}

func TestExpiredSessionIsDeleted(t *testing.T) {
	m := newTestManager(t, config.SessionConfig{TTL: time.Hour})
	ctx := context.Background()

	s, err := m.Create(ctx, "user-1", nil)
	require.NoError(t, err)

	s.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, m.Update(ctx, s))

	_, err = m.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = m.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupExpired(t *testing.T) {
	m := newTestManager(t, config.SessionConfig{TTL: time.Hour})
	ctx := context.Background()

	live, err := m.Create(ctx, "user-1", nil)
	require.NoError(t, err)

	dead, err := m.Create(ctx, "user-2", nil)
	require.NoError(t, err)
	dead.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, m.Update(ctx, dead))

	cleaned, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	_, err = m.Get(ctx, live.ID)
	assert.NoError(t, err)
}

func TestLocalCacheEviction(t *testing.T) {
	m := newTestManager(t, config.SessionConfig{CacheSize: 4})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := m.Create(ctx, "user-1", nil)
		require.NoError(t, err)
	}

	m.mu.RLock()
	size := len(m.localCache)
	m.mu.RUnlock()
	assert.LessOrEqual(t, size, 4)
}

func TestRecentHistoryWindow(t *testing.T) {
	m := newTestManager(t, config.SessionConfig{})
	ctx := context.Background()
	sess, err := m.Create(ctx, "u", nil)
	require.NoError(t, err)
	require.NoError(t, m.AppendExchange(ctx, sess.ID, "q1", "a1"))
	require.NoError(t, m.AppendExchange(ctx, sess.ID, "q2", "a2"))

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	recent := got.RecentHistory(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "q2", recent[0].Content)
	assert.Equal(t, "a2", recent[1].Content)

	assert.Len(t, got.RecentHistory(0), 4, "non-positive window keeps everything")
}
