package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/authd-api/internal/models"
	"github.com/noah-isme/authd-api/internal/repository"
	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

type mockBlacklistStore struct {
	mu      sync.Mutex
	entries map[string]*models.BlacklistEntry
	lookups int
}

func newMockBlacklistStore() *mockBlacklistStore {
	return &mockBlacklistStore{entries: make(map[string]*models.BlacklistEntry)}
}

func (m *mockBlacklistStore) Insert(ctx context.Context, entry *models.BlacklistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.JTI]; ok {
		return repository.ErrDuplicateJTI
	}
	m.entries[entry.JTI] = entry
	return nil
}

func (m *mockBlacklistStore) Exists(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	_, ok := m.entries[jti]
	return ok, nil
}

func (m *mockBlacklistStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for jti, entry := range m.entries {
		if entry.ExpiresAt.Before(now) {
			delete(m.entries, jti)
			count++
		}
	}
	return count, nil
}

func newTestRevocationService(t *testing.T, cacheTTL time.Duration) (*RevocationService, *mockBlacklistStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := newMockBlacklistStore()
	svc := NewRevocationService(store, repository.NewCacheRepository(client), cacheTTL, zap.NewNop(), nil)
	return svc, store, mr
}

func TestRevocationRevokeAndLookup(t *testing.T) {
	svc, _, _ := newTestRevocationService(t, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.Revoke(ctx, "jti-1", time.Now().UTC().Add(time.Hour)))

	revoked, err := svc.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = svc.IsRevoked(ctx, "jti-other")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocationDuplicateJTIConflicts(t *testing.T) {
	svc, _, _ := newTestRevocationService(t, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.Revoke(ctx, "jti-1", time.Now().UTC().Add(time.Hour)))

	err := svc.Revoke(ctx, "jti-1", time.Now().UTC().Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRevocationCachesBothOutcomes(t *testing.T) {
	svc, store, _ := newTestRevocationService(t, 5*time.Minute)
	ctx := context.Background()

	// First lookup misses the cache and hits the store.
	revoked, err := svc.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Equal(t, 1, store.lookups)

	// Repeat lookups are answered from cache, negative result included.
	for i := 0; i < 3; i++ {
		revoked, err = svc.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	}
	assert.Equal(t, 1, store.lookups)
}

func TestRevocationStalenessBoundedByTTL(t *testing.T) {
	svc, _, mr := newTestRevocationService(t, 5*time.Minute)
	ctx := context.Background()

	// Cache a negative result, then revoke behind the cache's back.
	revoked, err := svc.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, svc.Revoke(ctx, "jti-1", time.Now().UTC().Add(time.Hour)))

	// The stale negative answer is served until the TTL elapses.
	revoked, err = svc.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	mr.FastForward(5*time.Minute + time.Second)

	revoked, err = svc.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevocationWithoutCache(t *testing.T) {
	store := newMockBlacklistStore()
	svc := NewRevocationService(store, nil, 0, zap.NewNop(), nil)
	ctx := context.Background()

	require.NoError(t, svc.Revoke(ctx, "jti-1", time.Now().UTC().Add(time.Hour)))

	revoked, err := svc.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Every lookup goes straight to the store.
	_, _ = svc.IsRevoked(ctx, "jti-1")
	assert.Equal(t, 2, store.lookups)
}

func TestRevocationCleanupExpired(t *testing.T) {
	svc, store, _ := newTestRevocationService(t, 0)
	ctx := context.Background()

	require.NoError(t, svc.Revoke(ctx, "jti-old", time.Now().UTC().Add(-time.Minute)))
	require.NoError(t, svc.Revoke(ctx, "jti-live", time.Now().UTC().Add(time.Hour)))

	count, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Len(t, store.entries, 1)
}
