package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/authd-api/pkg/errors"
)

func newTestCacheRepository(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheRepository(client), mr
}

func TestCacheRoundTrip(t *testing.T) {
	repo, _ := newTestCacheRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "revoked:jti-1", true, time.Minute))

	var revoked bool
	require.NoError(t, repo.Get(ctx, "revoked:jti-1", &revoked))
	assert.True(t, revoked)
}

func TestCacheMiss(t *testing.T) {
	repo, _ := newTestCacheRepository(t)

	var revoked bool
	err := repo.Get(context.Background(), "revoked:absent", &revoked)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheTTLExpiry(t *testing.T) {
	repo, mr := newTestCacheRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "revoked:jti-1", false, time.Minute))

	var revoked bool
	require.NoError(t, repo.Get(ctx, "revoked:jti-1", &revoked))

	mr.FastForward(time.Minute + time.Second)

	err := repo.Get(ctx, "revoked:jti-1", &revoked)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheDelete(t *testing.T) {
	repo, _ := newTestCacheRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "revoked:jti-1", true, time.Minute))
	require.NoError(t, repo.Delete(ctx, "revoked:jti-1"))

	var revoked bool
	err := repo.Get(ctx, "revoked:jti-1", &revoked)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheNilClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "k", true, time.Minute))
	require.NoError(t, repo.Delete(ctx, "k"))
	require.NoError(t, repo.Close())

	var v bool
	err := repo.Get(ctx, "k", &v)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}
